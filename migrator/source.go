package migrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kubit-go/kubit/schema"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"

	endStatement   = "-- endStatement"
	beginStatement = "-- beginStatement"
)

var ErrMigrationExists = errors.New("migration already registered")

// MigrationFile is a named migration of a source
type MigrationFile struct {
	Name      string
	Path      string
	Migration schema.Migration
}

// Source lists migrations, the migrator sorts them by name
type Source interface {
	Migrations() ([]MigrationFile, error)
}

// Registry is a Source of Go migrations
type Registry struct {
	mu         sync.RWMutex
	migrations map[string]schema.Migration
}

func NewRegistry() *Registry {
	return &Registry{migrations: make(map[string]schema.Migration)}
}

func (r *Registry) Register(name string, m schema.Migration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.migrations[name]; ok {
		return fmt.Errorf("%w: %s", ErrMigrationExists, name)
	}

	r.migrations[name] = m
	return nil
}

// MustRegister panics when name is taken, for registrations from init
func (r *Registry) MustRegister(name string, m schema.Migration) {
	if err := r.Register(name, m); err != nil {
		panic(err)
	}
}

func (r *Registry) Migrations() ([]MigrationFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]MigrationFile, 0, len(r.migrations))
	for name, m := range r.migrations {
		files = append(files, MigrationFile{Name: name, Migration: m})
	}
	return files, nil
}

// FileSource reads *.up.sql / *.down.sql pairs of a directory. Statements are
// split on "-- endStatement" lines, a missing folder has no migrations.
type FileSource struct {
	Dir string
}

func (fs FileSource) Migrations() ([]MigrationFile, error) {
	ups, err := filepath.Glob(filepath.Join(fs.Dir, "*"+upSuffix))
	if err != nil {
		return nil, err
	}

	files := make([]MigrationFile, 0, len(ups))

	for _, up := range ups {
		name := strings.TrimSuffix(filepath.Base(up), upSuffix)

		upSQL, err := readStatements(up)
		if err != nil {
			return nil, err
		}

		down := strings.TrimSuffix(up, upSuffix) + downSuffix
		downSQL, err := readStatements(down)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}

		files = append(files, MigrationFile{
			Name:      name,
			Path:      up,
			Migration: sqlMigration{up: upSQL, down: downSQL},
		})
	}

	return files, nil
}

func readStatements(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitStatements(string(b)), nil
}

func splitStatements(sql string) []string {
	var stmts []string

	for _, stmt := range strings.Split(sql, endStatement) {
		stmt = strings.TrimSpace(strings.ReplaceAll(stmt, beginStatement, ""))
		if stmt == "" || isComment(stmt) {
			continue
		}
		stmts = append(stmts, stmt)
	}

	return stmts
}

// isComment reports if every line of stmt is a sql comment
func isComment(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

type sqlMigration struct {
	up, down []string
}

func (m sqlMigration) Up(s *schema.Schema) {
	for _, stmt := range m.up {
		s.Raw(stmt)
	}
}

func (m sqlMigration) Down(s *schema.Schema) {
	for _, stmt := range m.down {
		s.Raw(stmt)
	}
}

type multiSource []Source

// Sources merges sources, the first source wins on duplicate names
func Sources(sources ...Source) Source {
	return multiSource(sources)
}

func (ms multiSource) Migrations() ([]MigrationFile, error) {
	seen := map[string]struct{}{}
	var files []MigrationFile

	for _, s := range ms {
		if s == nil {
			continue
		}

		list, err := s.Migrations()
		if err != nil {
			return nil, err
		}

		for _, f := range list {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			files = append(files, f)
		}
	}

	return files, nil
}

func sortFiles(files []MigrationFile, natural bool) {
	sort.SliceStable(files, func(i, j int) bool {
		if natural {
			return naturalLess(files[i].Name, files[j].Name)
		}
		return files[i].Name < files[j].Name
	})
}

// naturalLess compares digit runs by value, 2_users sorts before 10_posts
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]

		if isDigit(ca) && isDigit(cb) {
			na, ra := leadingNumber(a)
			nb, rb := leadingNumber(b)

			if na != nb {
				if len(na) != len(nb) {
					return len(na) < len(nb)
				}
				return na < nb
			}

			a, b = ra, rb
			continue
		}

		if ca != cb {
			return ca < cb
		}

		a, b = a[1:], b[1:]
	}

	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// leadingNumber splits the leading digits of s, zeros trimmed
func leadingNumber(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}

	n := strings.TrimLeft(s[:i], "0")
	return n, s[i:]
}

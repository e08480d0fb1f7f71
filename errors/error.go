package errors

import (
	stderrors "errors"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var kubitSourceDir string

func init() {
	_, file, _, _ := runtime.Caller(0)

	kubitSourceDir = regexp.MustCompile(`errors.error\.go`).ReplaceAllString(file, "")
}

// Error is a keyed application error, the key is safe to hand to clients
// and the status is used when the error is rendered over http
type Error struct {
	Key         string         `json:"key"`
	Err         error          `json:"-"`
	Status      int            `json:"-"`
	Caller      string         `json:"-"`
	ErrorString string         `json:"error,omitempty"`
	Data        map[string]any `json:"field_errors,omitempty"`
}

func (ae Error) Error() string {
	if ae.ErrorString == "" {
		return ae.Key
	}
	return ae.ErrorString
}

func (ae Error) Unwrap() error { return ae.Err }

// Is matches on the key so wrapped copies still compare equal to the template
func (ae Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Key == ae.Key
}

func (ae Error) ToLogFields() logrus.Fields {
	return logrus.Fields{
		"key":    ae.Key,
		"error":  ae.Err,
		"caller": ae.Caller,
	}
}

// NewError returns a new error of the same key wrapping err
func (ae Error) NewError(err error) Error {
	source := ""

	var inner Error
	if stderrors.As(err, &inner) && inner.Caller != "" {
		source = inner.Caller
	} else {
		source = FileWithLineNum()
	}

	e := Error{Key: ae.Key, Err: err, Caller: source, Status: ae.Status, Data: ae.Data}

	er := ae.Err
	if er == nil {
		er = err
	}

	if er != nil {
		e.ErrorString = er.Error()
	}

	return e
}

// SetData attaches data (IE: field errors) to a keyed error
func SetData(err error, key string, value any) error {
	if err == nil {
		return nil
	}

	ae, ok := err.(Error)
	if !ok {
		return err
	}

	data := make(map[string]any, len(ae.Data)+1)
	for k, v := range ae.Data {
		data[k] = v
	}
	data[key] = value

	ae.Data = data
	return ae
}

// FileWithLineNum return the file name and line number of the first caller
// outside of this package and gorm
func FileWithLineNum() string {
	for i := 2; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if ok && ((!strings.HasPrefix(file, kubitSourceDir) && !strings.Contains(file, "gorm.io")) || strings.HasSuffix(file, "_test.go")) {
			return file + ":" + strconv.FormatInt(int64(line), 10)
		}
	}

	return ""
}

package kubit

import (
	"regexp"
	"strings"
	"sync"
)

type RouteToken struct {
	value     string
	matcher   string
	isDynamic bool

	re *regexp.Regexp
}

func (rs *RouteToken) Value() string   { return rs.value }
func (rs *RouteToken) Matcher() string { return rs.matcher }
func (rs *RouteToken) IsDynamic() bool { return rs.isDynamic }
func (rs *RouteToken) Equal(rs2 *RouteToken) bool {
	return rs2.value == rs.value && rs2.matcher == rs.matcher && rs2.isDynamic == rs.isDynamic
}

var (
	matcherLock  sync.Mutex
	matcherCache = map[string]*regexp.Regexp{}
)

// compileMatcher anchors the matcher so {id:[0-9]+} does not accept "12ab"
func compileMatcher(matcher string) *regexp.Regexp {
	matcherLock.Lock()
	defer matcherLock.Unlock()

	if re, ok := matcherCache[matcher]; ok {
		return re
	}

	re := regexp.MustCompile("^(?:" + matcher + ")$")
	matcherCache[matcher] = re
	return re
}

// Match takes a string and matches it against the current RouteToken
func (rs *RouteToken) Match(str string) bool {
	if !rs.isDynamic {
		return rs.value == str
	}

	if rs.re == nil {
		return true
	}

	return rs.re.MatchString(str)
}

// tokenize takes a string path and turns them into RouteTokens
func tokenize(path string) []*RouteToken {
	if path == "" {
		return nil
	}

	tokens := make([]*RouteToken, 0, strings.Count(path, "/")+1)

	pos := 0
	end := len(path)

	// Add leading root if path starts with "/"
	if path[0] == '/' {
		tokens = append(tokens, &RouteToken{value: "/"})
		pos++
	}

	for pos < end {
		start := pos

		// Handle variable segments {var:[0-9]+}
		if path[pos] == '{' {
			depth := 0
			for pos < end {
				if path[pos] == '{' {
					depth++
				} else if path[pos] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				pos++
			}

			if pos < end {
				tokens = append(tokens, dynamicToken(path[start+1:pos]))

				pos++ // Move past '}'
				if pos < end && path[pos] == '/' {
					pos++
				}
				continue
			}

			pos = start
		}

		// Handle static path segments
		for pos < end && path[pos] != '/' {
			pos++
		}

		if start != pos {
			tokens = append(tokens, &RouteToken{value: path[start:pos]})
		}

		// Skip trailing slash
		if pos < end && path[pos] == '/' {
			pos++
		}
	}

	return tokens
}

func dynamicToken(body string) *RouteToken {
	name, matcher, found := strings.Cut(body, ":")
	if !found {
		return &RouteToken{value: body, isDynamic: true}
	}

	return &RouteToken{
		value:     name,
		matcher:   matcher,
		isDynamic: true,
		re:        compileMatcher(matcher),
	}
}

// pathSegments takes a string path and turns them into segments
// this is used for walking the path, matching routes and creating variables
func pathSegments(path string) []string {
	if path == "" {
		return []string{}
	}

	if path == "/" {
		return []string{path}
	}

	segments := make([]string, 0, strings.Count(path, "/")+1)

	start := 0
	if path[0] == '/' {
		segments = append(segments, "/")
		start = 1
	}

	tokenStart := start

	for i := start; i < len(path); i++ {
		if path[i] == '/' {
			if tokenStart != i {
				segments = append(segments, path[tokenStart:i])
			}
			tokenStart = i + 1
		}
	}

	// Capture the last segment if the path doesn't end with '/'
	if tokenStart < len(path) {
		segments = append(segments, path[tokenStart:])
	}

	return segments
}

package api

// Level is an access level granted on a permission category.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelDelete
)

var levelNames = map[string]Level{
	"none":   LevelNone,
	"read":   LevelRead,
	"write":  LevelWrite,
	"delete": LevelDelete,
}

// ParseLevel converts a level name as used by the API ("none", "read",
// "write", "delete"). ok is false for unknown names.
func ParseLevel(name string) (level Level, ok bool) {
	level, ok = levelNames[name]
	return level, ok
}

var levelStrings = [...]string{"none", "read", "write", "delete"}

func (l Level) String() string {
	if l < LevelNone || l > LevelDelete {
		return "none"
	}
	return levelStrings[l]
}

// Permissions maps a category (doc, blog, network, profile, post) to a level
// name.
type Permissions map[string]string

// Satisfies reports whether p grants at least the level required for every
// category in required. A missing category counts as "none"; an unknown
// required level is never satisfied.
func (p Permissions) Satisfies(required Permissions) bool {
	for category, want := range required {
		wantLevel, ok := ParseLevel(want)
		if !ok {
			return false
		}
		have, _ := ParseLevel(p[category])
		if have < wantLevel {
			return false
		}
	}
	return true
}

func (p Permissions) authParams() Params {
	params := make(Params, len(p))
	for category, level := range p {
		params["perm_"+category] = level
	}
	return params
}

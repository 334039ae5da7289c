package contracts

import "fmt"

// State key families used by the default tool set.
const (
	KeyDBUsers KeyFamily = "db.users"
	KeyFSFile  KeyFamily = "fs.file"
)

// KeyFamily names a coarse category of state a contract's static Reads/
// Writes sets use before any argument-specific StateResolver narrows it.
type KeyFamily = StateKey

func filePathKey(args map[string]any, argNames ...string) (StateKey, error) {
	for _, name := range argNames {
		v, ok := args[name]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		return StateKey(fmt.Sprintf("fs.file:%s", s)), nil
	}
	return "", fmt.Errorf("contracts: missing path/uri argument to resolve file state key")
}

// NewDefaultRegistry registers the fixed tool set this system plans
// against: three db.users mutators plus list/get readers, and a
// write_file/read_file pair scoped to individual paths.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	must := func(c *ToolContract) {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}

	must(&ToolContract{
		Name:        "create_user",
		Server:      "db",
		Writes:      NewKeySet(KeyDBUsers),
		Idempotent:  false,
		Commutative: true,
		RequiredArgs: map[string]ArgType{
			"name":  ArgString,
			"email": ArgString,
		},
	})

	must(&ToolContract{
		Name:        "update_user",
		Server:      "db",
		Reads:       NewKeySet(KeyDBUsers),
		Writes:      NewKeySet(KeyDBUsers),
		Idempotent:  true,
		Commutative: false,
		RequiredArgs: map[string]ArgType{
			"user_id": ArgNumber,
		},
		OptionalArgs: map[string]ArgType{
			"name":  ArgString,
			"email": ArgString,
		},
	})

	must(&ToolContract{
		Name:        "delete_user",
		Server:      "db",
		Reads:       NewKeySet(KeyDBUsers),
		Writes:      NewKeySet(KeyDBUsers),
		Idempotent:  true,
		Commutative: false,
		RequiredArgs: map[string]ArgType{
			"user_id": ArgNumber,
		},
	})

	must(&ToolContract{
		Name:        "list_users",
		Server:      "db",
		Reads:       NewKeySet(KeyDBUsers),
		Idempotent:  true,
		Commutative: true,
		OptionalArgs: map[string]ArgType{
			"name_filter":  ArgString,
			"email_filter": ArgString,
		},
	})

	must(&ToolContract{
		Name:        "get_user_by_id",
		Server:      "db",
		Reads:       NewKeySet(KeyDBUsers),
		Idempotent:  true,
		Commutative: true,
		RequiredArgs: map[string]ArgType{
			"user_id": ArgNumber,
		},
	})

	must(&ToolContract{
		Name:        "write_file",
		Server:      "file",
		Writes:      NewKeySet(KeyFSFile),
		Idempotent:  false,
		Commutative: false,
		RequiredArgs: map[string]ArgType{
			"path":    ArgString,
			"content": ArgAny,
		},
		StateResolver: func(args map[string]any) (KeySet, KeySet, error) {
			key, err := filePathKey(args, "path")
			if err != nil {
				return nil, NewKeySet(KeyFSFile), nil
			}
			return NewKeySet(), NewKeySet(key), nil
		},
	})

	must(&ToolContract{
		Name:           "read_file",
		Server:         "file",
		Reads:          NewKeySet(KeyFSFile),
		Idempotent:     true,
		Commutative:    true,
		IsResourceRead: true,
		RequiredArgs: map[string]ArgType{
			"path": ArgString,
		},
		StateResolver: func(args map[string]any) (KeySet, KeySet, error) {
			key, err := filePathKey(args, "path", "uri")
			if err != nil {
				return NewKeySet(KeyFSFile), NewKeySet(), nil
			}
			return NewKeySet(key), NewKeySet(), nil
		},
	})

	return r
}

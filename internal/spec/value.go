package spec

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ValueKind tells which variant a Value holds.
type ValueKind int

const (
	// LiteralKind is a plain string.
	LiteralKind ValueKind = iota
	// SecretKind names a secret the engine resolves from its secret store.
	SecretKind
	// RuntimeKind names a boot-time fact such as the host's public IP.
	RuntimeKind
)

func (k ValueKind) String() string {
	switch k {
	case LiteralKind:
		return "literal"
	case SecretKind:
		return "secret"
	case RuntimeKind:
		return "runtime"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is an environment variable value or file content. Secrets and
// runtime values are never resolved here, only carried to the engine.
type Value struct {
	kind ValueKind
	text string
}

type (
	secretJSON struct {
		NameOfSecret string `json:"nameOfSecret"`
	}

	runtimeJSON struct {
		ResourceKey string `json:"resourceKey"`
	}
)

// Literal returns a Value holding s verbatim.
func Literal(s string) Value {
	return Value{kind: LiteralKind, text: s}
}

// Secret returns a Value referring to the named secret.
func Secret(name string) Value {
	return Value{kind: SecretKind, text: name}
}

// Runtime returns a Value the engine fills in at boot time.
func Runtime(resourceKey string) Value {
	return Value{kind: RuntimeKind, text: resourceKey}
}

// Kind returns the variant.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Text returns the literal string, the secret name, or the resource key,
// depending on Kind.
func (v Value) Text() string {
	return v.text
}

func (v Value) String() string {
	switch v.kind {
	case SecretKind:
		return fmt.Sprintf("Secret(%s)", v.text)
	case RuntimeKind:
		return fmt.Sprintf("RuntimeValue(%s)", v.text)
	}
	return v.text
}

// MarshalJSON encodes literals as JSON strings and the other variants as
// {"nameOfSecret": ...} or {"resourceKey": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case SecretKind:
		return Canonical(secretJSON{NameOfSecret: v.text})
	case RuntimeKind:
		return Canonical(runtimeJSON{ResourceKey: v.text})
	}
	return Canonical(v.text)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(input []byte) error {
	input = bytes.TrimSpace(input)
	if len(input) > 0 && input[0] == '"' {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		*v = Literal(s)
		return nil
	}

	var fields map[string]string
	if err := json.Unmarshal(input, &fields); err != nil {
		return fmt.Errorf("value must be a string, a secret, or a runtime value: %w", err)
	}
	if len(fields) != 1 {
		return fmt.Errorf("value object must have exactly one key (has %d)", len(fields))
	}
	if name, ok := fields["nameOfSecret"]; ok {
		*v = Secret(name)
		return nil
	}
	if key, ok := fields["resourceKey"]; ok {
		*v = Runtime(key)
		return nil
	}
	return fmt.Errorf("unrecognized value object %s", input)
}

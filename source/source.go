// Package source turns a circuit-source reference (inline bytes, an http(s)
// URL or an s3:// object) into a circuit.
package source

import (
	"encoding/base64"
	"strings"

	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/qerr"
)

// Source languages.
const (
	LangCircuitJSON = "circuit-json"
	LangOpenQASM    = "openqasm"
)

// Spec is a deferred circuit source. When both URL and Data are set the URL
// wins and Data is ignored.
type Spec struct {
	Language    string `json:"language"`
	URL         string `json:"url,omitempty"`
	Data        []byte `json:"data,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// NormalizeLanguage folds case and fills in the default language.
func NormalizeLanguage(lang string) (string, error) {
	switch l := strings.ToLower(strings.TrimSpace(lang)); l {
	case "", LangCircuitJSON, "json":
		return LangCircuitJSON, nil
	case LangOpenQASM, "qasm", "openqasm2":
		return LangOpenQASM, nil
	default:
		return "", qerr.New(qerr.InvalidArgument, "unsupported implementation language %q", lang)
	}
}

// Validate checks the language and that a location is given.
func (s Spec) Validate() error {
	if _, err := NormalizeLanguage(s.Language); err != nil {
		return err
	}
	if s.URL == "" && len(s.Data) == 0 {
		return qerr.New(qerr.InvalidArgument, "no circuit source given")
	}
	return nil
}

// DecodeInline decodes base64 inline data. Padded and unpadded standard
// encodings are accepted.
func DecodeInline(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if out, err := base64.StdEncoding.DecodeString(data); err == nil {
		return out, nil
	}
	out, err := base64.RawStdEncoding.DecodeString(data)
	if err != nil {
		return nil, qerr.Wrap(qerr.SourceRetrievalFailure, err, "decode inline circuit data")
	}
	return out, nil
}

// Parse converts source text in lang into a circuit.
func Parse(lang string, data []byte) (circuit.Circuit, error) {
	lang, err := NormalizeLanguage(lang)
	if err != nil {
		return circuit.Circuit{}, err
	}
	if lang == LangOpenQASM {
		return circuit.ParseQASM(string(data))
	}
	return circuit.ParseJSON(data)
}

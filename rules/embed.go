// Package rules provides the embedded, versioned rule tables that drive the
// engagement pipeline (signal lexicon, opportunity tables, action policy,
// channel constraints, reply templates) and the JSON Schemas that document them.
// Operators can replace any table with a file of the same schema.
package rules

import "embed"

//go:embed *.yaml
var tables embed.FS

//go:embed schema/*.json
var schemas embed.FS

// Table names. Each maps to <name>.yaml and schema/<name>.schema.json.
const (
	Lexicon      = "lexicon"
	Opportunity  = "opportunity"
	ActionPolicy = "action_policy"
	Channels     = "channels"
	Templates    = "templates"
	Request      = "request"
)

// Tables lists the rule tables shipped with the binary.
func Tables() []string {
	return []string{Lexicon, Opportunity, ActionPolicy, Channels, Templates}
}

// YAML returns the embedded YAML for the named table.
func YAML(name string) ([]byte, error) {
	return tables.ReadFile(name + ".yaml")
}

// MustYAML is YAML for tables known to be embedded.
func MustYAML(name string) []byte {
	data, err := YAML(name)
	if err != nil {
		panic("rules: missing embedded table " + name)
	}
	return data
}

// Schema returns the JSON Schema for the named table or for the request contract.
func Schema(name string) ([]byte, error) {
	return schemas.ReadFile("schema/" + name + ".schema.json")
}

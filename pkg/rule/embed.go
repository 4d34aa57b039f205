package rule

import "embed"

// builtinRulesFS embeds the default rule source used when no rule file is given.
//
//go:embed rules/default.json
var builtinRulesFS embed.FS

const builtinRulesPath = "rules/default.json"

package rule

// yamlRule is the intermediate struct for the list form of a YAML rule file.
type yamlRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// yamlRulesFile represents the top-level structure of a list-form rules file:
//
//	rules:
//	  - name: Generic API Key
//	    pattern: api_key=\w+
type yamlRulesFile struct {
	Rules []yamlRule `yaml:"rules"`
}

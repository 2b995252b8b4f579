// Package explain is the natural-language boundary of the service. Remote
// text-generation providers are tried in order through a fallback chain with
// per-attempt timeouts; when none is configured or all fail, deterministic
// rule-based templates answer instead. Every operation in this package
// succeeds — degradation is silent by contract.
package explain

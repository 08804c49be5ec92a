package engine

// Operation names understood by web view adapters.
const (
	OpRun       = "run"
	OpSetTitle  = "set_title"
	OpSetSize   = "set_size"
	OpNavigate  = "navigate"
	OpSetHTML   = "set_html"
	OpInit      = "init"
	OpEval      = "eval"
	OpTerminate = "terminate"
	OpDestroy   = "destroy"
)

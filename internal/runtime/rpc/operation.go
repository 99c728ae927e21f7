// Package rpc implements request/response over a publish/subscribe broker:
// the wire envelope, the operation dispatch table, a sequential server and a
// correlating client.
package rpc

// Operation tags a request with the remote action it asks for.
type Operation string

const (
	ProbeClean           Operation = "PROBE_CLEAN"
	ProbeCount           Operation = "PROBE_COUNT"
	ProbeCountAndClean   Operation = "PROBE_COUNT_AND_CLEAN"
	ProbeFetch           Operation = "PROBE_FETCH"
	ProbeFetchAndClean   Operation = "PROBE_FETCH_AND_CLEAN"
	NamespaceGetVariable Operation = "NAMESPACE_GET_VARIABLE"
	NamespaceSetVariable Operation = "NAMESPACE_SET_VARIABLE"
)

// ProbeOperations lists the operations a probe answers.
func ProbeOperations() []Operation {
	return []Operation{ProbeClean, ProbeCount, ProbeCountAndClean, ProbeFetch, ProbeFetchAndClean}
}

// NamespaceOperations lists the operations a namespace answers.
func NamespaceOperations() []Operation {
	return []Operation{NamespaceGetVariable, NamespaceSetVariable}
}

// Valid reports whether o is one of the known operations.
func (o Operation) Valid() bool {
	switch o {
	case ProbeClean, ProbeCount, ProbeCountAndClean, ProbeFetch, ProbeFetchAndClean,
		NamespaceGetVariable, NamespaceSetVariable:
		return true
	}
	return false
}

func (o Operation) String() string {
	return string(o)
}

package common

// Raw JSON-RPC payloads, decoded into generic maps by the transport and
// interpreted by the parser. Keeping them as maps lets one decode path
// tolerate every chain family's optional fields.
type (
	RawBlock   = map[string]interface{}
	RawReceipt = map[string]interface{}
	RawTrace   = map[string]interface{}
)

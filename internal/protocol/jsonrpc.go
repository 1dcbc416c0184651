package protocol

import "github.com/ohler55/ojg/jp"

// MethodToolsCall is the JSON-RPC method whose arguments take part in matching.
const MethodToolsCall = "tools/call"

var (
	methodPath    = jp.MustParseString("$.method")
	argumentsPath = jp.MustParseString("$.params.arguments")
)

// RPCMethod returns the "method" member of a decoded JSON-RPC request.
// It reports false when v is not an object or the method is not a string.
func RPCMethod(v any) (string, bool) {
	if _, ok := v.(map[string]any); !ok {
		return "", false
	}
	method, ok := methodPath.First(v).(string)
	return method, ok
}

// CallArguments returns params.arguments of a decoded request, or nil when absent.
func CallArguments(v any) any {
	return argumentsPath.First(v)
}

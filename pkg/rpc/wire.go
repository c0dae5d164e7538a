package rpc

// Channel is the radio channel CALL and RESULT travel on. The spec allows
// ANNOUNCE/DISCOVER/CALL/RESULT to share one channel, discriminated by
// "kind" — discovery uses the same literal channel name.
const Channel = "shelfos"

const (
	kindCall   = "CALL"
	kindResult = "RESULT"
)

func encodeCall(requestID, peripheralName, method string, args []any) map[string]any {
	return map[string]any{
		"kind":       kindCall,
		"request_id": requestID,
		"peripheral": peripheralName,
		"method":     method,
		"args":       args,
	}
}

type callRequest struct {
	RequestID      string
	PeripheralName string
	Method         string
	Args           []any
}

func decodeCall(m map[string]any) (callRequest, bool) {
	if k, _ := m["kind"].(string); k != kindCall {
		return callRequest{}, false
	}
	requestID, _ := m["request_id"].(string)
	peripheralName, _ := m["peripheral"].(string)
	method, _ := m["method"].(string)
	args, _ := m["args"].([]any)
	if requestID == "" || peripheralName == "" || method == "" {
		return callRequest{}, false
	}
	return callRequest{
		RequestID:      requestID,
		PeripheralName: peripheralName,
		Method:         method,
		Args:           args,
	}, true
}

func encodeResult(requestID string, ok bool, values []any, errorText string) map[string]any {
	return map[string]any{
		"kind":       kindResult,
		"request_id": requestID,
		"ok":         ok,
		"values":     values,
		"error":      errorText,
	}
}

type callResultWire struct {
	RequestID string
	OK        bool
	Values    []any
	ErrorText string
}

func decodeResult(m map[string]any) (callResultWire, bool) {
	if k, _ := m["kind"].(string); k != kindResult {
		return callResultWire{}, false
	}
	requestID, _ := m["request_id"].(string)
	if requestID == "" {
		return callResultWire{}, false
	}
	ok, _ := m["ok"].(bool)
	values, _ := m["values"].([]any)
	errorText, _ := m["error"].(string)
	return callResultWire{
		RequestID: requestID,
		OK:        ok,
		Values:    values,
		ErrorText: errorText,
	}, true
}

package discovery

const (
	kindAnnounce = "ANNOUNCE"
	kindDiscover = "DISCOVER"
)

type peripheralTXT struct {
	Name    string
	Type    string
	Methods []string
}

func encodeAnnounce(nodeID, label string, peripherals []peripheralTXT) map[string]any {
	list := make([]any, 0, len(peripherals))
	for _, p := range peripherals {
		methods := make([]any, 0, len(p.Methods))
		for _, m := range p.Methods {
			methods = append(methods, m)
		}
		list = append(list, map[string]any{"name": p.Name, "type": p.Type, "methods": methods})
	}
	return map[string]any{
		"kind":        kindAnnounce,
		"node_id":     nodeID,
		"label":       label,
		"peripherals": list,
	}
}

type announcePayload struct {
	NodeID      string
	Label       string
	Peripherals []peripheralTXT
}

func decodeAnnounce(m map[string]any) (announcePayload, bool) {
	if k, _ := m["kind"].(string); k != kindAnnounce {
		return announcePayload{}, false
	}
	nodeID, _ := m["node_id"].(string)
	label, _ := m["label"].(string)
	if nodeID == "" {
		return announcePayload{}, false
	}

	var peripherals []peripheralTXT
	if raw, ok := m["peripherals"].([]any); ok {
		for _, item := range raw {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			typ, _ := entry["type"].(string)
			if name == "" {
				continue
			}
			var methods []string
			if rawMethods, ok := entry["methods"].([]any); ok {
				for _, rm := range rawMethods {
					if s, ok := rm.(string); ok {
						methods = append(methods, s)
					}
				}
			}
			peripherals = append(peripherals, peripheralTXT{Name: name, Type: typ, Methods: methods})
		}
	}

	return announcePayload{NodeID: nodeID, Label: label, Peripherals: peripherals}, true
}

func encodeDiscover(nodeID string) map[string]any {
	return map[string]any{
		"kind":    kindDiscover,
		"node_id": nodeID,
	}
}

func decodeDiscover(m map[string]any) (nodeID string, ok bool) {
	if k, _ := m["kind"].(string); k != kindDiscover {
		return "", false
	}
	nodeID, _ = m["node_id"].(string)
	return nodeID, nodeID != ""
}

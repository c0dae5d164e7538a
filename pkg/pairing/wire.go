package pairing

import "github.com/shelfos/shelfos/pkg/codec"

// ChannelPair is the dedicated radio channel pairing messages travel on,
// kept separate from the general-purpose "shelfos" channel so a node that
// isn't currently pairing can ignore the traffic outright.
const ChannelPair = "shelfos_pair"

const (
	kindPairReady    = "PAIR_READY"
	kindPairDeliver  = "PAIR_DELIVER"
	kindPairComplete = "PAIR_COMPLETE"
)

func encodeReady(nodeID, label, code string) map[string]any {
	return map[string]any{
		"kind":    kindPairReady,
		"node_id": nodeID,
		"label":   label,
		"code":    code,
	}
}

// decodePlain decodes an unauthenticated (non-Envelope) codec payload, the
// wire form PAIR_READY travels in since no shared secret exists yet between
// an arbitrary worker and queen.
func decodePlain(data []byte) (map[string]any, error) {
	decoded, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, codec.DecodeError
	}
	return m, nil
}

func decodeReady(m map[string]any) (nodeID, label, code string, ok bool) {
	if k, _ := m["kind"].(string); k != kindPairReady {
		return "", "", "", false
	}
	nodeID, _ = m["node_id"].(string)
	label, _ = m["label"].(string)
	code, _ = m["code"].(string)
	return nodeID, label, code, nodeID != "" && code != ""
}

func encodeDeliver(swarmID string, swarmSecret []byte, peerSecret []byte, fingerprint string) map[string]any {
	return map[string]any{
		"kind":         kindPairDeliver,
		"swarm_id":     swarmID,
		"swarm_secret": string(swarmSecret),
		"peer_secret":  string(peerSecret),
		"fingerprint":  fingerprint,
	}
}

type deliverPayload struct {
	SwarmID     string
	SwarmSecret []byte
	PeerSecret  []byte
	Fingerprint string
}

func decodeDeliver(m map[string]any) (deliverPayload, bool) {
	if k, _ := m["kind"].(string); k != kindPairDeliver {
		return deliverPayload{}, false
	}
	swarmID, _ := m["swarm_id"].(string)
	swarmSecret, _ := m["swarm_secret"].(string)
	peerSecret, _ := m["peer_secret"].(string)
	fingerprint, _ := m["fingerprint"].(string)
	if swarmID == "" || swarmSecret == "" || peerSecret == "" {
		return deliverPayload{}, false
	}
	return deliverPayload{
		SwarmID:     swarmID,
		SwarmSecret: []byte(swarmSecret),
		PeerSecret:  []byte(peerSecret),
		Fingerprint: fingerprint,
	}, true
}

func encodeComplete(nodeID, label string) map[string]any {
	return map[string]any{
		"kind":    kindPairComplete,
		"node_id": nodeID,
		"label":   label,
	}
}

func decodeComplete(m map[string]any) (nodeID, label string, ok bool) {
	if k, _ := m["kind"].(string); k != kindPairComplete {
		return "", "", false
	}
	nodeID, _ = m["node_id"].(string)
	label, _ = m["label"].(string)
	return nodeID, label, nodeID != ""
}

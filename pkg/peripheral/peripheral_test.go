package peripheral

import "testing"

func TestHostInvoke(t *testing.T) {
	h := NewHost()
	h.Attach(&Attachable{
		Name: "me_bridge_0",
		Type: "battery",
		Methods: map[string]Method{
			"getStoredEnergy": func(args []any) ([]any, error) {
				return []any{500000}, nil
			},
		},
	})

	result, err := h.Invoke("me_bridge_0", "getStoredEnergy", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 || result[0] != 500000 {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestHostInvokeErrors(t *testing.T) {
	h := NewHost()
	h.Attach(&Attachable{Name: "x", Type: "t", Methods: map[string]Method{"m": func([]any) ([]any, error) { return nil, nil }}})

	if _, err := h.Invoke("nope", "m", nil); err != ErrNoSuchPeripheral {
		t.Fatalf("expected ErrNoSuchPeripheral, got %v", err)
	}
	if _, err := h.Invoke("x", "nope", nil); err != ErrNoSuchMethod {
		t.Fatalf("expected ErrNoSuchMethod, got %v", err)
	}
}

func TestDirectoryEnumeration(t *testing.T) {
	h := NewHost()
	h.Attach(&Attachable{
		Name: "me_light_1",
		Type: "light",
		Methods: map[string]Method{
			"turnOn":  func([]any) ([]any, error) { return nil, nil },
			"turnOff": func([]any) ([]any, error) { return nil, nil },
		},
	})

	d := NewDirectory(h)
	names := d.ListNames()
	if len(names) != 1 || names[0] != "me_light_1" {
		t.Fatalf("unexpected names: %v", names)
	}

	typ, ok := d.GetType("me_light_1")
	if !ok || typ != "light" {
		t.Fatalf("unexpected type: %v %v", typ, ok)
	}

	methods, ok := d.GetMethods("me_light_1")
	if !ok || len(methods) != 2 || methods[0] != "turnOff" || methods[1] != "turnOn" {
		t.Fatalf("expected sorted [turnOff turnOn], got %v", methods)
	}
}

func TestDirectorySnapshotIsPointInTime(t *testing.T) {
	h := NewHost()
	d := NewDirectory(h)

	if len(d.ListNames()) != 0 {
		t.Fatal("expected empty directory")
	}

	h.Attach(&Attachable{Name: "new-one", Type: "t", Methods: map[string]Method{}})
	if len(d.ListNames()) != 1 {
		t.Fatal("expected rescan to observe the newly attached peripheral")
	}
}

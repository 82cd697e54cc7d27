package influxdb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) Points() []*write.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*write.Point, len(w.points))
	copy(out, w.points)
	return out
}

var recordedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFakeClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(nil, w)
	c.now = func() time.Time { return recordedAt }
	return c, w
}

func tagMap(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestRecordBreach(t *testing.T) {
	c, w := newFakeClient()

	c.RecordBreach("device001", 38.5, 37)

	points := w.Points()
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	if p.Name() != MeasurementBreach {
		t.Errorf("measurement = %q, want %q", p.Name(), MeasurementBreach)
	}
	if !p.Time().Equal(recordedAt) {
		t.Errorf("time = %v, want %v", p.Time(), recordedAt)
	}
	if tags := tagMap(p); tags["device_id"] != "device001" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldMap(p)
	if fields["value"] != 38.5 || fields["limit"] != 37.0 {
		t.Errorf("fields = %v, want value=38.5 limit=37", fields)
	}
}

func TestRecordAction(t *testing.T) {
	c, w := newFakeClient()

	c.RecordAction("device001", descriptor.SwitchAction(descriptor.ValueOff), "threshold_breach")

	points := w.Points()
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	want := map[string]string{
		"device_id":    "device001",
		"action_type":  "SWITCH",
		"action_value": "OFF",
		"reason":       "threshold_breach",
	}
	tags := tagMap(points[0])
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}
	if points[0].Name() != MeasurementAction {
		t.Errorf("measurement = %q", points[0].Name())
	}
}

func TestRecordRearm(t *testing.T) {
	c, w := newFakeClient()

	c.RecordRearm("device001", "fired")

	points := w.Points()
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if tags := tagMap(points[0]); tags["outcome"] != "fired" || tags["device_id"] != "device001" {
		t.Errorf("tags = %v", tags)
	}
}

func TestClose_StopsWrites(t *testing.T) {
	c, w := newFakeClient()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}

	c.RecordRearm("device001", "fired")
	c.Flush()
	if n := len(w.Points()); n != 0 {
		t.Errorf("points written after Close = %d, want 0", n)
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	c.RecordBreach("device001", 40, 37)
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c, _ := newFakeClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errBoom
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, errBoom) {
			t.Errorf("callback error = %v, want %v", err, errBoom)
		}
	default:
		t.Error("callback not invoked")
	}
}

var errBoom = errors.New("boom")

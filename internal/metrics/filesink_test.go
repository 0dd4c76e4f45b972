package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileSink_StoresMetricsJSON(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	sink.SetDimensions(map[string]string{
		"instance": "m5.metal",
		"parallel": "5",
		"mounts":   "0",
	})
	for _, v := range []float64{900, 901, 902} {
		if err := sink.Record("startup", v, "Microseconds"); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "metrics.json"))
	if err != nil {
		t.Fatalf("read metrics.json: %v", err)
	}

	var stored struct {
		Metrics map[string]struct {
			Unit   string    `json:"unit"`
			Values []float64 `json:"values"`
		} `json:"metrics"`
		Dimensions map[string]string `json:"dimensions"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("decode metrics.json: %v", err)
	}

	startup, ok := stored.Metrics["startup"]
	if !ok {
		t.Fatalf("missing startup metric in %s", data)
	}
	if startup.Unit != "Microseconds" {
		t.Fatalf("unexpected unit %q", startup.Unit)
	}
	if len(startup.Values) != 3 || startup.Values[0] != 900 {
		t.Fatalf("unexpected values %v", startup.Values)
	}
	if stored.Dimensions["parallel"] != "5" {
		t.Fatalf("unexpected dimensions %v", stored.Dimensions)
	}
}

func TestFileSink_ConcurrentRecordLosesNothing(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	const workers = 10
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := sink.Record("startup", 900, "Microseconds"); err != nil {
					t.Errorf("Record: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := sink.Count("startup"); got != workers*perWorker {
		t.Fatalf("expected %d samples, got %d", workers*perWorker, got)
	}
}

func TestMulti_FansOut(t *testing.T) {
	a := NewFileSink(t.TempDir())
	b := NewFileSink(t.TempDir())
	multi := NewMulti(a, b)

	multi.SetDimensions(map[string]string{"mounts": "100"})
	if err := multi.Record("startup", 900, "Microseconds"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if a.Count("startup") != 1 || b.Count("startup") != 1 {
		t.Fatalf("expected both sinks to receive the sample, got %d and %d", a.Count("startup"), b.Count("startup"))
	}
}

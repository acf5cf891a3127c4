package profile

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCollector(t *testing.T) {
	Reset()
	AddTime("Send", 0.25)
	AddTime("Send", 0.75)
	AddTime("Recv", 0.5)

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector()); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	got := map[string]map[string]float64{}
	for _, mf := range families {
		vals := map[string]float64{}
		for _, m := range mf.GetMetric() {
			vals[labelValue(m, "function")] = m.GetCounter().GetValue()
		}
		got[mf.GetName()] = vals
	}

	calls := got["redev_function_calls_total"]
	if calls["Send"] != 2 || calls["Recv"] != 1 {
		t.Errorf("calls = %v", calls)
	}
	seconds := got["redev_function_seconds_total"]
	if seconds["Send"] != 1.0 || seconds["Recv"] != 0.5 {
		t.Errorf("seconds = %v", seconds)
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

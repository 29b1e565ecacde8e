package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentDatalog(t *testing.T) {
	history := Datalog{ID: "History", FirstKey: 100, LastKey: 900, Interval: 60}
	current := Datalog{ID: "Current", FirstKey: 500, LastKey: 1000, Interval: 5}

	tests := []struct {
		name   string
		logs   []Datalog
		want   Datalog
		wantOK bool
	}{
		{"current present", []Datalog{history, current}, current, true},
		{"only history", []Datalog{history}, Datalog{}, false},
		{"empty", nil, Datalog{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CurrentDatalog(tt.logs)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)

			st := DeviceStatus{Datalogs: tt.logs}
			got, ok = st.CurrentDatalog()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

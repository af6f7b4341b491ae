package watch

import (
	"reflect"
	"testing"
	"time"
)

func TestDaemonArgs(t *testing.T) {
	tests := []struct {
		name string
		opts DaemonOptions
		want []string
	}{
		{
			name: "dir only",
			opts: DaemonOptions{Dir: "/data/shards"},
			want: []string{"watch", "/data/shards", "--foreground"},
		},
		{
			name: "full options",
			opts: DaemonOptions{
				Dir:      "/data/shards",
				Out:      "/data/merged",
				Dataset:  "roxford5k",
				Layer:    "heads",
				World:    4,
				Codec:    "hdf5",
				Window:   2 * time.Second,
				Evaluate: true,
				Server:   "http://localhost:8080",
			},
			want: []string{
				"watch", "/data/shards", "--foreground",
				"--out", "/data/merged",
				"--dataset", "roxford5k",
				"--layer", "heads",
				"--world", "4",
				"--codec", "hdf5",
				"--window", "2s",
				"--evaluate",
				"--server", "http://localhost:8080",
			},
		},
		{
			name: "zero world and window omitted",
			opts: DaemonOptions{Dir: "/data", Dataset: "instre", World: 0, Window: 0},
			want: []string{"watch", "/data", "--foreground", "--dataset", "instre"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := daemonArgs(tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("daemonArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

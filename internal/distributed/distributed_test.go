package distributed

import (
	"fmt"
	"net"
	"regexp"
	"testing"
)

func TestFreeTCPPort(t *testing.T) {
	port, err := FreeTCPPort()
	if err != nil {
		t.Fatalf("FreeTCPPort() error = %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Fatalf("FreeTCPPort() = %d, outside valid range", port)
	}

	// The port is released and bindable again.
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		t.Fatalf("rebinding port %d failed: %v", port, err)
	}
	ln.Close()
}

func TestRunID(t *testing.T) {
	autoPattern := regexp.MustCompile(`^127\.0\.0\.1:\d+$`)

	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
		auto    bool
	}{
		{"tcp auto single node", Options{InitMethod: "tcp", RunID: "auto", NumNodes: 1}, "", false, true},
		{"tcp auto multi node", Options{InitMethod: "tcp", RunID: "auto", NumNodes: 2}, "", true, false},
		{"tcp explicit", Options{InitMethod: "tcp", RunID: "10.0.0.1:29500", NumNodes: 4}, "10.0.0.1:29500", false, false},
		{"tcp multi node without id", Options{InitMethod: "tcp", RunID: "", NumNodes: 2}, "", true, false},
		{"env single node", Options{InitMethod: "env", RunID: "unused", NumNodes: 1}, "unused", false, false},
		{"env multi node", Options{InitMethod: "env", RunID: "x", NumNodes: 3}, "", true, false},
		{"file", Options{InitMethod: "file", RunID: "/shared/run", NumNodes: 1}, "/shared/run", false, false},
		{"file multi node warns but works", Options{InitMethod: "file", RunID: "/shared/run", NumNodes: 2}, "/shared/run", false, false},
		{"unknown method", Options{InitMethod: "mpi", NumNodes: 1}, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunID(tt.opts, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.auto {
				if !autoPattern.MatchString(got) {
					t.Errorf("RunID() = %q, want 127.0.0.1:<port>", got)
				}
				return
			}
			if got != tt.want {
				t.Errorf("RunID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNodeSeed(t *testing.T) {
	tests := []struct {
		name     string
		seed     int64
		nodeID   int
		numNodes int
		want     int64
	}{
		{"single node keeps seed", 42, 0, 1, 42},
		{"single node ignores id", 42, 5, 1, 42},
		{"multi node zero", 42, 0, 4, 0},
		{"multi node spreads", 42, 3, 4, 252},
		{"multi node one", 7, 1, 2, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NodeSeed(tt.seed, tt.nodeID, tt.numNodes); got != tt.want {
				t.Errorf("NodeSeed(%d, %d, %d) = %d, want %d", tt.seed, tt.nodeID, tt.numNodes, got, tt.want)
			}
		})
	}
}

func TestNodeSlice(t *testing.T) {
	got, err := NodeSlice(7, 1, 3)
	if err != nil {
		t.Fatalf("NodeSlice() error = %v", err)
	}
	want := []int{1, 4}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("NodeSlice(7, 1, 3) = %v, want %v", got, want)
	}
}

func TestNodeSlice_Partition(t *testing.T) {
	const n, nodes = 23, 4

	seen := make(map[int]int)
	for node := 0; node < nodes; node++ {
		slice, err := NodeSlice(n, node, nodes)
		if err != nil {
			t.Fatalf("NodeSlice(node %d) error = %v", node, err)
		}
		for _, i := range slice {
			seen[i]++
		}
	}

	if len(seen) != n {
		t.Fatalf("partition covers %d indices, want %d", len(seen), n)
	}
	for i, count := range seen {
		if count != 1 {
			t.Errorf("index %d assigned %d times", i, count)
		}
	}
}

func TestNodeSlice_Errors(t *testing.T) {
	if _, err := NodeSlice(10, 0, 0); err == nil {
		t.Error("NodeSlice() expected error for zero nodes")
	}
	if _, err := NodeSlice(10, 3, 3); err == nil {
		t.Error("NodeSlice() expected error for node id out of range")
	}
	if _, err := NodeSlice(10, -1, 3); err == nil {
		t.Error("NodeSlice() expected error for negative node id")
	}
}

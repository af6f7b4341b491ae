// Package distributed holds the bootstrap helpers multi-node extraction
// runs on: rendezvous run IDs, free-port discovery, per-node seeds and the
// round-robin assignment of dataset items to nodes.
package distributed

import (
	"fmt"
	"net"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/logger"
)

// Init methods for the rendezvous run ID.
const (
	InitTCP  = "tcp"
	InitEnv  = "env"
	InitFile = "file"

	// AutoRunID asks for a locally bound free port.
	AutoRunID = "auto"
)

// Options selects how the run ID is derived.
type Options struct {
	InitMethod string
	RunID      string
	NumNodes   int
}

// FreeTCPPort binds port 0 to let the OS pick a free port and returns it.
// Another process may still grab the port before it is used again.
func FreeTCPPort() (int, error) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeUnavailable, "bind free port", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// RunID resolves the rendezvous identifier for a run. tcp with an auto run
// ID picks a local free port and only works on a single node; env is single
// node only; file run IDs are shared paths and discouraged above one node.
func RunID(opts Options, log *logger.Logger) (string, error) {
	if log == nil {
		log = logger.Default()
	}

	switch opts.InitMethod {
	case InitTCP:
		if opts.RunID == AutoRunID {
			if opts.NumNodes != 1 {
				return "", apperrors.ValidationError("run id auto is allowed for one node only")
			}
			port, err := FreeTCPPort()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("127.0.0.1:%d", port), nil
		}
		if opts.NumNodes > 1 && opts.RunID == "" {
			return "", apperrors.ValidationError("multi-node tcp runs need an explicit run id")
		}
		return opts.RunID, nil
	case InitEnv:
		if opts.NumNodes != 1 {
			return "", apperrors.ValidationError("env init method cannot span nodes, use tcp")
		}
		return opts.RunID, nil
	case InitFile:
		if opts.NumNodes > 1 {
			log.Warn("file init method is not recommended above one node",
				"num_nodes", opts.NumNodes)
		}
		return opts.RunID, nil
	default:
		return "", apperrors.ValidationError(fmt.Sprintf("unknown init method %q", opts.InitMethod))
	}
}

// NodeSeed derives the seed for one node. Single-node runs use the base seed
// unchanged; multi-node runs spread it as seed*2*nodeID so nodes never share
// a generator stream.
func NodeSeed(seed int64, nodeID, numNodes int) int64 {
	if numNodes > 1 {
		return seed * 2 * int64(nodeID)
	}
	return seed
}

// NodeSlice assigns dataset indices [0, n) to a node round-robin.
func NodeSlice(n, nodeID, numNodes int) ([]int, error) {
	if numNodes <= 0 {
		return nil, apperrors.ValidationError(fmt.Sprintf("num nodes %d must be positive", numNodes))
	}
	if nodeID < 0 || nodeID >= numNodes {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"node id %d outside [0, %d)", nodeID, numNodes))
	}

	indices := make([]int, 0, (n+numNodes-1)/numNodes)
	for i := nodeID; i < n; i += numNodes {
		indices = append(indices, i)
	}
	return indices, nil
}

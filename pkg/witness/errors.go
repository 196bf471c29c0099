package witness

import "fmt"

var (
	errNoEntry     = fmt.Errorf("witness graph has no entry node")
	errNoViolation = fmt.Errorf("witness graph has no violation node")
)

func errUnresolvedEdge(source, target string) error {
	return fmt.Errorf("edge %s -> %s references an unknown node", source, target)
}

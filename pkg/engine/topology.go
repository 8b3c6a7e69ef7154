package engine

import (
	"github.com/sirupsen/logrus"
)

// PairPorts walks the enabled ports two at a time and pairs consecutive
// ones bidirectionally. An odd leftover port pairs with itself and
// forwards its own traffic back out, which is intentional rather than a
// degenerate case. The mapping is total over the input and immutable
// once workers start, so it is shared without locking.
func PairPorts(ids []uint16) map[uint16]uint16 {
	pairs := make(map[uint16]uint16, len(ids))
	for i := 0; i+1 < len(ids); i += 2 {
		pairs[ids[i]] = ids[i+1]
		pairs[ids[i+1]] = ids[i]
	}
	if len(ids)%2 == 1 {
		last := ids[len(ids)-1]
		pairs[last] = last
		logrus.Warnf("odd number of ports, port %v will forward to itself", last)
	}
	return pairs
}

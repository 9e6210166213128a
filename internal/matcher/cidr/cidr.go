// Package cidr implements CidrSet, a longest-prefix IP match over both
// address families, built on github.com/yl2chen/cidranger — the same
// ranger used by the ambient access-list chain stage.
package cidr

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/yl2chen/cidranger"
)

// CidrSet is a build-once, read-many longest-prefix match set. Before
// Seal it accepts Add/AddFile under a mutex; after Seal it is immutable
// and safe for unsynchronised concurrent reads, per §4.2.
type CidrSet struct {
	mu     sync.Mutex
	ranger cidranger.Ranger
	sealed bool
	count  int
}

// New returns an empty, unsealed CidrSet.
func New() *CidrSet {
	return &CidrSet{ranger: cidranger.NewPCTrieRanger()}
}

// Add inserts a CIDR literal, IPv4 or IPv6.
func (c *CidrSet) Add(cidrLiteral string) error {
	_, ipnet, err := net.ParseCIDR(cidrLiteral)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return errors.New("cidr: set is sealed")
	}
	if err := c.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet)); err != nil {
		return err
	}
	c.count++
	return nil
}

// Len reports how many CIDR literals have been registered.
func (c *CidrSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// AddFile bulk-loads CIDR literals from path: one per line, `#` comments,
// blank lines ignored, per §4.2/§6. Malformed lines are skipped.
func (c *CidrSet) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.Add(line); err != nil {
			continue
		}
	}
	return scanner.Err()
}

// Seal freezes the set.
func (c *CidrSet) Seal() *CidrSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return c
}

// Contains is a longest-prefix match: it reports whether any registered
// CIDR literal covers ip.
func (c *CidrSet) Contains(ip net.IP) bool {
	ok, _ := c.ranger.Contains(ip)
	return ok
}

// Package redisclusterutil parses cluster topology replies.
package redisclusterutil

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"github.com/joomcode/redisbulk/redis"
)

// NumSlots is the number of hash slots in redis cluster.
const NumSlots = 1 << 14

// SlotMoving is a flag about direction of slot migration.
type SlotMoving byte

const (
	// SlotMigrating indicates slot is migrating from this instance.
	SlotMigrating SlotMoving = 1
	// SlotImporting indicates slot is importing into this instance.
	SlotImporting SlotMoving = 2
)

// SlotsRange represents slice of slots
type SlotsRange struct {
	From  int
	To    int
	Addrs []string // addresses of hosts hosting this range of slots. First address is a master, and other are slaves.
}

// ParseSlotsInfo parses result of CLUSTER SLOTS command.
// Addresses with empty host (unknown endpoint) are skipped.
func ParseSlotsInfo(res interface{}) ([]SlotsRange, error) {
	if err := redis.AsError(res); err != nil {
		return nil, err
	}

	errf := func(f string, args ...interface{}) ([]SlotsRange, error) {
		msg := fmt.Sprintf(f, args...)
		err := redis.ErrResponseUnexpected.New(msg)
		return nil, err
	}

	var rawranges []interface{}
	var ok bool
	if rawranges, ok = res.([]interface{}); !ok {
		return errf("type is not array: %+v", res)
	}
	if len(rawranges) == 0 {
		return errf("host doesn't know about slots (probably it is not in cluster)")
	}

	ranges := make([]SlotsRange, 0, len(rawranges))
	for i, rawelem := range rawranges {
		var rawrange []interface{}
		var i64 int64
		r := SlotsRange{}
		if rawrange, ok = rawelem.([]interface{}); !ok || len(rawrange) < 3 {
			return errf("format mismatch: res[%d]=%+v", i, rawelem)
		}
		if i64, ok = rawrange[0].(int64); !ok || i64 < 0 || i64 >= NumSlots {
			return errf("format mismatch: res[%d][0]=%+v", i, rawrange[0])
		}
		r.From = int(i64)
		if i64, ok = rawrange[1].(int64); !ok || i64 < 0 || i64 >= NumSlots {
			return errf("format mismatch: res[%d][1]=%+v", i, rawrange[1])
		}
		r.To = int(i64)
		if r.From > r.To {
			return errf("range wrong: res[%d]=%+v", i, rawrange)
		}
		for j := 2; j < len(rawrange); j++ {
			rawaddr, ok := rawrange[j].([]interface{})
			if !ok || len(rawaddr) < 2 {
				return errf("address format mismatch: res[%d][%d] = %+v",
					i, j, rawrange[j])
			}
			host, ok := rawaddr[0].([]byte)
			if !ok || len(host) == 0 {
				// endpoint is unknown ('?' or empty) - host is not reachable yet
				continue
			}
			port, ok := rawaddr[1].(int64)
			if !ok || port <= 0 || port > 65535 {
				return errf("address format mismatch: res[%d][%d] = %+v",
					i, j, rawaddr)
			}
			r.Addrs = append(r.Addrs, string(host)+":"+strconv.Itoa(int(port)))
		}
		if len(r.Addrs) == 0 {
			continue
		}
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].From < ranges[j].From
	})
	return ranges, nil
}

// InstanceInfo represents line of CLUSTER NODES result.
type InstanceInfo struct {
	Uuid   string
	Addr   string
	IP     string
	Port   int
	Port2  int
	Fail   bool
	MySelf bool
	// NoAddr means that node were missed due to misconfiguration.
	// More probably, redis instance with other UUID were started on the same port.
	NoAddr    bool
	Handshake bool
	SlaveOf   string
	Slots     [][2]uint16
	Migrating []SlotMigration
}

// InstanceInfos represents CLUSTER NODES result
type InstanceInfos []InstanceInfo

// SlotMigration represents one migrating slot.
type SlotMigration struct {
	Number uint16
	Moving SlotMoving
	Peer   string
}

// AddrValid returns true if instance is successfully configured.
func (ii *InstanceInfo) AddrValid() bool {
	return ii.IP != "" && ii.Port != 0 && !ii.NoAddr
}

// IsMaster returns if this instance is master
func (ii *InstanceInfo) IsMaster() bool {
	return ii.SlaveOf == ""
}

// Usable reports whether instance could be connected to and scanned.
func (ii *InstanceInfo) Usable() bool {
	return ii.AddrValid() && !ii.Fail && !ii.Handshake
}

// HashSum calculates signature of cluster configuration.
// It assumes, configuration were sorted in some way.
// If two configurations have same signature, then node set is unchanged.
func (iis InstanceInfos) HashSum() uint64 {
	hsh := fnv.New64a()
	for _, ii := range iis {
		if !ii.AddrValid() && len(ii.Slots) == 0 {
			continue
		}
		if ii.Handshake {
			continue
		}
		fmt.Fprintf(hsh, "%s\t%s\t%d\t%v\t%s", ii.Uuid, ii.Addr, ii.Port2, ii.Fail, ii.SlaveOf)
		for _, slots := range ii.Slots {
			fmt.Fprintf(hsh, "\t%d-%d", slots[0], slots[1])
		}
		hsh.Write([]byte("\n"))
	}
	return hsh.Sum64()
}

// MySelf returns info line for the host information were collected from.
func (iis InstanceInfos) MySelf() *InstanceInfo {
	for i := range iis {
		if iis[i].MySelf {
			return &iis[i]
		}
	}
	return nil
}

// Hosts returns set of instance addresses.
func (iis InstanceInfos) Hosts() []string {
	res := make([]string, 0, len(iis))
	for i := range iis {
		if iis[i].AddrValid() {
			res = append(res, iis[i].Addr)
		}
	}
	return res
}

// Masters returns usable master instances.
func (iis InstanceInfos) Masters() InstanceInfos {
	res := make(InstanceInfos, 0, len(iis))
	for _, ii := range iis {
		if ii.IsMaster() && ii.Usable() {
			res = append(res, ii)
		}
	}
	return res
}

// InstancesFromSlots builds instance list out of CLUSTER SLOTS information.
// Such list lacks node ids, so addresses are used instead.
func InstancesFromSlots(ranges []SlotsRange) InstanceInfos {
	seen := make(map[string]int)
	infos := InstanceInfos{}
	add := func(addr, slaveOf string) int {
		if i, ok := seen[addr]; ok {
			return i
		}
		ii := InstanceInfo{Uuid: addr, Addr: addr, SlaveOf: slaveOf}
		if ix := strings.LastIndexByte(addr, ':'); ix != -1 {
			ii.IP = addr[:ix]
			ii.Port, _ = strconv.Atoi(addr[ix+1:])
		}
		infos = append(infos, ii)
		seen[addr] = len(infos) - 1
		return len(infos) - 1
	}
	for _, r := range ranges {
		m := add(r.Addrs[0], "")
		infos[m].Slots = append(infos[m].Slots, [2]uint16{uint16(r.From), uint16(r.To)})
		for _, replica := range r.Addrs[1:] {
			add(replica, r.Addrs[0])
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Uuid < infos[j].Uuid
	})
	return infos
}

// ParseClusterNodes parses result of CLUSTER NODES command.
func ParseClusterNodes(res interface{}) (InstanceInfos, error) {
	var err error
	if err = redis.AsError(res); err != nil {
		return nil, err
	}

	errf := func(f string, args ...interface{}) (InstanceInfos, error) {
		msg := fmt.Sprintf(f, args...)
		err := redis.ErrResponseUnexpected.New(msg)
		return nil, err
	}

	infob, ok := res.([]byte)
	if !ok {
		return errf("type is not []bytes, but %T", res)
	}
	lines := strings.Split(string(infob), "\n")
	infos := InstanceInfos{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) < 16 {
			continue
		}
		parts := strings.Split(line, " ")
		if len(parts) < 8 {
			return errf("too few fields in line %q", line)
		}
		ipp := strings.Split(parts[1], "@")
		if len(ipp) != 2 {
			return errf("ip-port is not in 'ip:port@port2' format, but %q", line)
		}
		// redis 7 appends ",hostname" to cluster bus port
		port2 := strings.SplitN(ipp[1], ",", 2)[0]
		ix := strings.LastIndexByte(ipp[0], ':')
		if ix == -1 {
			return errf("ip-port is not in 'ip:port@port2' format, but %q", line)
		}
		node := InstanceInfo{
			Uuid: parts[0],
			Addr: ipp[0],
			IP:   ipp[0][:ix],
		}
		node.Port, _ = strconv.Atoi(ipp[0][ix+1:])
		node.Port2, _ = strconv.Atoi(port2)

		for _, flag := range strings.Split(parts[2], ",") {
			switch flag {
			case "fail", "fail?":
				node.Fail = true
			case "slave":
				node.SlaveOf = parts[3]
			case "noaddr":
				node.NoAddr = true
			case "myself":
				node.MySelf = true
			case "handshake":
				node.Handshake = true
			}
		}

		for _, slot := range parts[8:] {
			if slot == "" {
				continue
			}
			if slot[0] == '[' {
				var uuid string
				var slotn int
				dir := SlotImporting

				if ix := strings.Index(slot, "-<-"); ix != -1 {
					slotn, err = strconv.Atoi(slot[1:ix])
					if err != nil {
						return errf("slot number is not an integer: %q", slot[1:ix])
					}
					uuid = slot[ix+3 : len(slot)-1]
				} else if ix = strings.Index(slot, "->-"); ix != -1 {
					slotn, err = strconv.Atoi(slot[1:ix])
					if err != nil {
						return errf("slot number is not an integer: %q", slot[1:ix])
					}
					uuid = slot[ix+3 : len(slot)-1]
					dir = SlotMigrating
				}
				node.Migrating = append(node.Migrating, SlotMigration{
					Number: uint16(slotn),
					Moving: dir,
					Peer:   uuid,
				})
			} else if ix := strings.IndexByte(slot, '-'); ix != -1 {
				from, err := strconv.Atoi(slot[:ix])
				if err != nil {
					return errf("slot number is not an integer: %q", slot)
				}
				to, err := strconv.Atoi(slot[ix+1:])
				if err != nil {
					return errf("slot number is not an integer: %q", slot)
				}
				node.Slots = append(node.Slots, [2]uint16{uint16(from), uint16(to)})
			} else {
				slotn, err := strconv.Atoi(slot)
				if err != nil {
					return errf("slot number is not an integer: %q", slot)
				}
				node.Slots = append(node.Slots, [2]uint16{uint16(slotn), uint16(slotn)})
			}
		}
		infos = append(infos, node)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Uuid < infos[j].Uuid
	})
	return infos, nil
}

package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const probeTimeout = 500 * time.Millisecond

// DiscoveredPeer is an edgekvm instance answering on the LAN
type DiscoveredPeer struct {
	IP    string `json:"ip"`
	Port  int    `json:"port"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// GetLocalIP returns the address used for outbound traffic
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// ScanLAN probes every address in the local /24 for the status API on port
func ScanLAN(ctx context.Context, port int) ([]DiscoveredPeer, error) {
	localIP, err := GetLocalIP()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IP: %w", err)
	}

	parts := strings.Split(localIP, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid IP address format: %s", localIP)
	}
	subnet := strings.Join(parts[:3], ".")

	client := &http.Client{Timeout: probeTimeout}

	var peers []DiscoveredPeer
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 1; i <= 254; i++ {
		ip := fmt.Sprintf("%s.%d", subnet, i)
		if ip == localIP {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if peer, ok := Probe(ctx, client, fmt.Sprintf("%s:%d", ip, port)); ok {
				mu.Lock()
				peers = append(peers, peer)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(peers, func(i, j int) bool { return peers[i].IP < peers[j].IP })
	return peers, ctx.Err()
}

// Probe checks /health on hostport and fills in details from /api/status when
// the API is open.
func Probe(ctx context.Context, client *http.Client, hostport string) (DiscoveredPeer, bool) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return DiscoveredPeer{}, false
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := get(ctx, client, "http://"+hostport+"/health")
	if err != nil {
		return DiscoveredPeer{}, false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DiscoveredPeer{}, false
	}

	peer := DiscoveredPeer{IP: host, Port: port}

	resp, err = get(ctx, client, "http://"+hostport+"/api/status")
	if err != nil {
		return peer, true
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return peer, true
	}

	var status struct {
		Name  string `json:"name"`
		Role  string `json:"role"`
		Owner string `json:"owner"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err == nil {
		peer.Name = status.Name
		peer.Role = status.Role
		peer.Owner = status.Owner
	}
	return peer, true
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// GetLocalIPs returns all non-loopback IPv4 addresses of interfaces that are up
func GetLocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

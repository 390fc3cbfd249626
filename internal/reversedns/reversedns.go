// Package reversedns recovers endpoint names for the addresses seen in
// network syscalls.
//
// A connect() to 10.0.0.5:5432 says little on its own. Most programs carry
// their endpoints in environment variables (DATABASE_URL, REDIS_HOST) and
// arguments (curl http://example.com, --host). The resolver scans those
// strings for hostnames, IPs and hostname:port pairs, resolves each hostname
// once and keeps a reverse map from IP to the original names. Sources are the
// traced command's metadata and the argv/envp of every execve in the trace.
//
// Ingestion never waits on DNS: hostnames are queued for a small pool of
// lookup workers and PeerHosts answers from whatever has resolved so far.
package reversedns

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/automation-stack/ctrace/internal/grammar"
	"github.com/automation-stack/ctrace/internal/procmeta"
)

var (
	hostnamePattern     = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}`)
	hostnamePortPattern = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}:\d{1,5}`)
	ipv4Pattern         = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)
	ipv6Pattern         = regexp.MustCompile(`(?i)(?:\[)?(?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:\])?`)
)

// fileSuffixes end names that look like hostnames but name files, such as
// /etc/bash.bashrc or libfoo.so.
var fileSuffixes = map[string]bool{
	"bashrc": true, "c": true, "cfg": true, "conf": true, "go": true, "gz": true,
	"h": true, "ini": true, "js": true, "json": true, "lock": true, "log": true,
	"md": true, "pid": true, "pl": true, "py": true, "rb": true, "service": true,
	"sh": true, "so": true, "sock": true, "tar": true, "toml": true, "txt": true,
	"xml": true, "yaml": true, "yml": true, "zip": true, "zsh": true,
}

const (
	lookupWorkers = 4
	lookupQueue   = 256
)

// execCalls carry a new program's argv and, with strace -v, its environment.
var execCalls = map[string]bool{
	"execve":      true,
	"execveat":    true,
	"posix_spawn": true,
}

// Resolver maps IP addresses back to the endpoint names they came from.
type Resolver struct {
	mu        sync.RWMutex
	ipToHosts map[string][]string
	processed map[string]bool
	closed    bool
	lookupIP  func(host string) ([]net.IP, error)
	logger    *zap.Logger

	pending chan string
	workers errgroup.Group
}

// New creates a new Resolver using the system resolver. Close stops its
// lookup workers.
func New(logger *zap.Logger) *Resolver {
	return newResolver(net.LookupIP, logger)
}

func newResolver(lookupIP func(host string) ([]net.IP, error), logger *zap.Logger) *Resolver {
	r := &Resolver{
		ipToHosts: make(map[string][]string),
		processed: make(map[string]bool),
		lookupIP:  lookupIP,
		logger:    logger,
		pending:   make(chan string, lookupQueue),
	}
	r.workers.SetLimit(lookupWorkers)
	for range lookupWorkers {
		r.workers.Go(r.lookupLoop)
	}
	return r
}

// Close waits for the queued lookups to finish. Later ingestion is ignored.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.pending)
	r.mu.Unlock()

	_ = r.workers.Wait()
}

// IngestEndpoints scans each string for hostnames, IPs and hostname:port pairs.
func (r *Resolver) IngestEndpoints(endpoints ...string) {
	for _, endpoint := range endpoints {
		r.extractEndpoints(endpoint)
	}
}

// IngestMetadata ingests the environment values and arguments of a process.
func (r *Resolver) IngestMetadata(metadata *procmeta.ProcessMetadata) {
	if metadata == nil {
		return
	}
	for _, value := range metadata.Environ {
		r.extractEndpoints(value)
	}
	r.IngestEndpoints(metadata.Args...)
}

// HandleSyscall ingests the arguments of exec calls.
func (r *Resolver) HandleSyscall(ev *grammar.Event) error {
	if execCalls[ev.Name] && ev.Arguments != "" {
		r.extractEndpoints(ev.Arguments)
	}
	return nil
}

func (r *Resolver) extractEndpoints(s string) {
	for _, match := range hostnameMatches(hostnamePortPattern, s) {
		r.addHostnamePort(match)
	}
	for _, match := range hostnameMatches(hostnamePattern, s) {
		r.addHostname(match)
	}
	for _, match := range ipv4Pattern.FindAllString(s, -1) {
		if net.ParseIP(match) != nil {
			r.addIPMapping(match, match)
		}
	}
	for _, match := range ipv6Pattern.FindAllString(s, -1) {
		if ip := parseIPv6(match); ip != "" {
			r.addIPMapping(ip, ip)
		}
	}
}

// hostnameMatches returns the matches of pattern that are not path
// components or file names. A match right after a single '/' is part of a
// path, one after "//" is a URL authority.
func hostnameMatches(pattern *regexp.Regexp, s string) []string {
	var out []string
	for _, loc := range pattern.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			switch s[start-1] {
			case '/':
				if start < 2 || s[start-2] != '/' {
					continue
				}
			case '_', '.', '-':
				continue
			}
		}
		match := s[start:end]
		host, _, _ := strings.Cut(match, ":")
		if fileSuffixes[strings.ToLower(host[strings.LastIndexByte(host, '.')+1:])] {
			continue
		}
		out = append(out, match)
	}
	return out
}

func parseIPv6(s string) string {
	s = strings.Trim(s, "[]")
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() != nil {
		return ""
	}
	return ip.String()
}

func (r *Resolver) addHostnamePort(hostPort string) {
	hostname, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return
	}
	r.addHostname(hostname)
}

func (r *Resolver) addHostname(hostname string) {
	hostname = strings.Trim(strings.ToLower(hostname), "[]")

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.processed[hostname] {
		return
	}

	select {
	case r.pending <- hostname:
		r.processed[hostname] = true
	default:
		// Left unmarked so a later sighting can queue it again.
		r.logger.Debug("hostname lookup queue full", zap.String("host", hostname))
	}
}

func (r *Resolver) lookupLoop() error {
	for hostname := range r.pending {
		ips, err := r.lookupIP(hostname)
		if err != nil {
			r.logger.Debug("hostname lookup", zap.String("host", hostname), zap.Error(err))
			continue
		}
		for _, ip := range ips {
			r.addIPMapping(ip.String(), hostname)
		}
	}
	return nil
}

func (r *Resolver) addIPMapping(ip, hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.ipToHosts[ip] {
		if h == hostname {
			return
		}
	}
	r.ipToHosts[ip] = append(r.ipToHosts[ip], hostname)
}

// Lookup returns possible hostnames for a given IP address.
func (r *Resolver) Lookup(ip string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hosts := r.ipToHosts[ip]
	if len(hosts) == 0 {
		return nil
	}
	out := make([]string, len(hosts))
	copy(out, hosts)
	return out
}

// PeerHosts returns the known names of the addresses an event refers to,
// such as sin_addr=inet_addr("10.0.0.5") in arguments or a TCP:[a->b] fd
// path. Addresses without a known name are omitted.
func (r *Resolver) PeerHosts(ev *grammar.Event) []string {
	var hosts []string
	seen := make(map[string]bool)

	for _, text := range []string{ev.Arguments, ev.ReturnValue} {
		var ips []string
		ips = append(ips, ipv4Pattern.FindAllString(text, -1)...)
		for _, m := range ipv6Pattern.FindAllString(text, -1) {
			if ip := parseIPv6(m); ip != "" {
				ips = append(ips, ip)
			}
		}

		for _, ip := range ips {
			for _, h := range r.Lookup(ip) {
				if h != ip && !seen[h] {
					seen[h] = true
					hosts = append(hosts, h)
				}
			}
		}
	}
	return hosts
}

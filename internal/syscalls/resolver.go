package syscalls

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// UnknownNumber is the Number of a descriptor whose syscall number is not known.
const UnknownNumber = -1

// Undocumented is shown in place of a description for unresolved calls.
const Undocumented = "undocumented"

const resolverCacheSize = 512

// Descriptor is the resolved metadata of a syscall name.
type Descriptor struct {
	Name              string
	Synonym           string
	Number            int
	Description       string
	PlatformExclusive bool
	Platform          Platform
}

// NumberString renders the syscall number, or NULL when unknown.
func (d Descriptor) NumberString() string {
	if d.Number == UnknownNumber {
		return "NULL"
	}
	return strconv.Itoa(d.Number)
}

// Exclusivity returns the platform name for platform-specific calls, empty otherwise.
func (d Descriptor) Exclusivity() string {
	if d.PlatformExclusive {
		return d.Platform.String()
	}
	return ""
}

type cached struct {
	desc Descriptor
	ok   bool
}

// Resolver maps raw syscall names to descriptors for one platform.
type Resolver struct {
	platform Platform
	table    *Table
	cache    *lru.Cache
	logger   *zap.Logger
}

// NewResolver creates a resolver over table for platform p.
func NewResolver(p Platform, table *Table, logger *zap.Logger) (*Resolver, error) {
	cache, err := lru.New(resolverCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}

	return &Resolver{
		platform: p,
		table:    table,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Platform returns the platform the resolver looks names up for.
func (r *Resolver) Platform() Platform {
	return r.platform
}

// Resolve returns the descriptor for name. It reports false when the name is
// unknown or the lookup failed; neither case is an error for the caller.
func (r *Resolver) Resolve(name string) (Descriptor, bool) {
	if name == "" {
		return Descriptor{}, false
	}

	if v, ok := r.cache.Get(name); ok {
		c := v.(cached)
		return c.desc, c.ok
	}

	desc, ok := r.lookup(name)
	r.cache.Add(name, cached{desc: desc, ok: ok})

	return desc, ok
}

// Describe returns the description for name, or Undocumented.
func (r *Resolver) Describe(name string) string {
	if d, ok := r.Resolve(name); ok && d.Description != "" {
		return d.Description
	}
	return Undocumented
}

func (r *Resolver) lookup(name string) (desc Descriptor, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("syscall lookup failed", zap.String("name", name), zap.Any("panic", rec))
			desc, ok = Descriptor{}, false
		}
	}()

	entry, err := r.find(name)
	if err != nil {
		r.logger.Debug("syscall lookup failed", zap.String("name", name), zap.Error(err))
		return Descriptor{}, false
	}
	if entry == nil {
		return Descriptor{}, false
	}

	rec := entry.For(r.platform)
	desc = Descriptor{
		Name:              name,
		Number:            rec.Number,
		Description:       rec.Desc,
		PlatformExclusive: entry.Exclusive(),
		Platform:          r.platform,
	}
	if rec.Name != name {
		desc.Synonym = rec.Name
	}
	if desc.Description == "" {
		desc.Description = Undocumented
	}

	return desc, true
}

func (r *Resolver) find(name string) (*Entry, error) {
	cleaned := strings.Trim(name, "_")

	if e := r.scan(func(canonical string) bool { return canonical == name }); e != nil {
		return e, nil
	}
	if cleaned == "" {
		return nil, nil
	}
	if e := r.scan(func(canonical string) bool { return canonical == cleaned }); e != nil {
		return e, nil
	}

	p1, err := affixPattern(name)
	if err != nil {
		return nil, err
	}
	p2, err := affixPattern(cleaned)
	if err != nil {
		return nil, err
	}
	if e := r.scan(func(canonical string) bool { return p1.MatchString(canonical) || p2.MatchString(canonical) }); e != nil {
		return e, nil
	}

	return r.wrapped(cleaned), nil
}

// scan returns the first entry for the platform whose canonical name satisfies match.
func (r *Resolver) scan(match func(canonical string) bool) *Entry {
	entries := r.table.Entries()
	for i := range entries {
		rec := entries[i].For(r.platform)
		if rec == nil {
			continue
		}
		if match(rec.Name) {
			return &entries[i]
		}
	}
	return nil
}

// wrapped finds the longest canonical name that name carries as a '_'-delimited
// prefix or suffix, as in read_nocancel or sys_read.
func (r *Resolver) wrapped(name string) *Entry {
	var (
		best    *Entry
		bestLen int
	)

	entries := r.table.Entries()
	for i := range entries {
		rec := entries[i].For(r.platform)
		if rec == nil || len(rec.Name) <= bestLen {
			continue
		}
		if strings.HasPrefix(name, rec.Name+"_") || strings.HasSuffix(name, "_"+rec.Name) {
			best, bestLen = &entries[i], len(rec.Name)
		}
	}

	return best
}

func affixPattern(name string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(name)
	return regexp.Compile("(?i)^" + quoted + "|" + quoted + "$")
}

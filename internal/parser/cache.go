package parser

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"badge-print-service/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoises parsed layers per template content. Entries are written
// once and only read afterwards, so a cached *Layers must not be modified.
type Cache struct {
	items   *gocache.Cache
	cdnBase string
}

// NewCache creates a parsed-template cache with the given TTL.
func NewCache(ttl time.Duration, cdnBase string) *Cache {
	return &Cache{
		items:   gocache.New(ttl, 2*ttl),
		cdnBase: cdnBase,
	}
}

// Get returns the parsed layers for tpl, parsing on first use.
func (c *Cache) Get(tpl *models.BadgeTemplate) *Layers {
	key := c.key(tpl)
	if cached, found := c.items.Get(key); found {
		return cached.(*Layers)
	}
	layers := Parse(tpl.Elements, MetaFor(tpl, c.cdnBase))
	c.items.Set(key, layers, gocache.DefaultExpiration)
	return layers
}

func (c *Cache) key(tpl *models.BadgeTemplate) string {
	body, err := json.Marshal(tpl)
	if err != nil {
		body = []byte(fmt.Sprintf("%p", tpl))
	}
	hash := md5.Sum(body)
	return "tpl:" + tpl.ID + ":" + hex.EncodeToString(hash[:])
}

func (c *Cache) ItemCount() int { return c.items.ItemCount() }

func (c *Cache) Flush() { c.items.Flush() }

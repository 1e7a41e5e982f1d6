package advice

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable hex digest of the context, usable as a cache
// key: two contexts that would produce the same analysis share a
// fingerprint. Metadata keys are folded in sorted order so map iteration
// cannot leak into the digest.
func (c *Context) Fingerprint() string {
	h, _ := blake2b.New256(nil)

	write := func(label string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			data = []byte(fmt.Sprintf("%v", v))
		}
		h.Write([]byte(label))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}

	write("type", c.Type)
	write("tenant", c.TenantID)
	if c.Query != nil {
		write("query", c.Query)
	}
	if c.Funnel != nil {
		write("funnel", c.Funnel)
	}
	if c.Motion != nil {
		write("motion", c.Motion)
	}
	if c.Payload != nil {
		write("payload", c.Payload)
	}

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write("meta:"+k, c.Metadata[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

package api

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Params holds the arguments of an API method call.
type Params map[string]string

// Keys returns the parameter names in ascending order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode returns the canonical "k1=v1&k2=v2" form of the parameters, sorted
// by key, so that equal parameter sets always encode identically.
func (p Params) Encode() string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[k]))
	}
	return b.String()
}

func (p Params) clone() Params {
	c := make(Params, len(p)+3)
	for k, v := range p {
		c[k] = v
	}
	return c
}

func (p Params) values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// sign computes md5(k1 v1 k2 v2 ... suffix secret) over the sorted params.
func (p Params) sign(suffix, secret string) string {
	var b strings.Builder
	for _, k := range p.Keys() {
		if k == "api_sig" {
			continue
		}
		b.WriteString(k)
		b.WriteString(p[k])
	}
	b.WriteString(suffix)
	b.WriteString(secret)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

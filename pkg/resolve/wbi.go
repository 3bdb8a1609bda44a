package resolve

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// mixinKeyTable permutes img_key+sub_key into the WBI mixin key.
var mixinKeyTable = [...]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
}

func mixinKey(imgKey, subKey string) string {
	orig := imgKey + subKey
	var b strings.Builder
	b.Grow(len(mixinKeyTable))
	for _, i := range mixinKeyTable {
		if i < len(orig) {
			b.WriteByte(orig[i])
		}
	}
	return b.String()
}

// wbiKey extracts the key from a wbi_img URL: the file name without its
// extension.
func wbiKey(imgURL string) string {
	u, err := url.Parse(imgURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}

var wbiStrip = strings.NewReplacer("!", "", "'", "", "(", "", ")", "", "*", "")

// signWBI returns params plus wts and w_rid. Characters the server strips
// before checking are removed from the values first.
func signWBI(params url.Values, imgKey, subKey string, now time.Time) url.Values {
	out := make(url.Values, len(params)+2)
	for k, vs := range params {
		for _, v := range vs {
			out.Add(k, wbiStrip.Replace(v))
		}
	}
	out.Set("wts", strconv.FormatInt(now.Unix(), 10))

	// Encode sorts by key; the server hashes spaces as %20.
	query := strings.ReplaceAll(out.Encode(), "+", "%20")
	sum := md5.Sum([]byte(query + mixinKey(imgKey, subKey)))
	out.Set("w_rid", hex.EncodeToString(sum[:]))
	return out
}

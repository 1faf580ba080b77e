// internal/common/validation/normalize.go
// Email canonicalisation matching the common provider rules

package validation

import "strings"

var icloudDomains = map[string]bool{
	"icloud.com": true,
	"me.com":     true,
}

var outlookDomains = map[string]bool{
	"hotmail.at": true, "hotmail.be": true, "hotmail.ca": true, "hotmail.cl": true,
	"hotmail.co.il": true, "hotmail.co.nz": true, "hotmail.co.th": true, "hotmail.co.uk": true,
	"hotmail.com": true, "hotmail.com.ar": true, "hotmail.com.au": true, "hotmail.com.br": true,
	"hotmail.com.gr": true, "hotmail.com.mx": true, "hotmail.com.pe": true, "hotmail.com.tr": true,
	"hotmail.com.vn": true, "hotmail.cz": true, "hotmail.de": true, "hotmail.dk": true,
	"hotmail.es": true, "hotmail.fr": true, "hotmail.hu": true, "hotmail.id": true,
	"hotmail.ie": true, "hotmail.in": true, "hotmail.it": true, "hotmail.jp": true,
	"hotmail.kr": true, "hotmail.lv": true, "hotmail.my": true, "hotmail.ph": true,
	"hotmail.pt": true, "hotmail.sa": true, "hotmail.sg": true, "hotmail.sk": true,
	"live.be": true, "live.co.uk": true, "live.com": true, "live.com.ar": true,
	"live.com.mx": true, "live.de": true, "live.es": true, "live.eu": true,
	"live.fr": true, "live.it": true, "live.nl": true, "msn.com": true,
	"outlook.at": true, "outlook.be": true, "outlook.cl": true, "outlook.co.il": true,
	"outlook.co.nz": true, "outlook.co.th": true, "outlook.com": true, "outlook.com.ar": true,
	"outlook.com.au": true, "outlook.com.br": true, "outlook.com.gr": true, "outlook.com.pe": true,
	"outlook.com.tr": true, "outlook.com.vn": true, "outlook.cz": true, "outlook.de": true,
	"outlook.dk": true, "outlook.es": true, "outlook.fr": true, "outlook.hu": true,
	"outlook.id": true, "outlook.ie": true, "outlook.in": true, "outlook.it": true,
	"outlook.jp": true, "outlook.kr": true, "outlook.lv": true, "outlook.my": true,
	"outlook.ph": true, "outlook.pt": true, "outlook.sa": true, "outlook.sg": true,
	"outlook.sk": true, "passport.com": true,
}

var yahooDomains = map[string]bool{
	"rocketmail.com": true, "yahoo.ca": true, "yahoo.co.uk": true,
	"yahoo.com": true, "yahoo.de": true, "yahoo.fr": true,
	"yahoo.in": true, "yahoo.it": true, "ymail.com": true,
}

var yandexDomains = map[string]bool{
	"yandex.ru": true, "yandex.ua": true, "yandex.kz": true,
	"yandex.com": true, "yandex.by": true, "ya.ru": true,
}

// NormalizeEmail lower-cases an address and applies provider specific
// canonicalisation. A value without '@' is treated as a bare domain and
// comes back as "@<value>". ok is false when the local part of a provider
// address ends up empty.
func NormalizeEmail(email string) (string, bool) {
	if email == "" {
		return "", true
	}

	var local, domain string
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local, domain = email[:at], email[at+1:]
	} else {
		domain = email
	}
	domain = strings.ToLower(domain)

	switch {
	case domain == "gmail.com" || domain == "googlemail.com":
		local = stripAfter(local, "+")
		local = removeSingleDots(local)
		if local == "" {
			return "", false
		}
		local = strings.ToLower(local)
		domain = "gmail.com"

	case icloudDomains[domain], outlookDomains[domain]:
		local = stripAfter(local, "+")
		if local == "" {
			return "", false
		}
		local = strings.ToLower(local)

	case yahooDomains[domain]:
		if i := strings.LastIndex(local, "-"); i >= 0 {
			local = local[:i]
		}
		if local == "" {
			return "", false
		}
		local = strings.ToLower(local)

	case yandexDomains[domain]:
		local = strings.ToLower(local)
		domain = "yandex.ru"

	default:
		local = strings.ToLower(local)
	}

	return local + "@" + domain, true
}

func stripAfter(s, sep string) string {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i]
	}
	return s
}

// removeSingleDots drops lone dots and keeps runs of two or more
func removeSingleDots(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '.' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '.' {
			j++
		}
		if j-i > 1 {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

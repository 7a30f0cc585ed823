// Package security はアプリケーションURL・リダイレクトURIの検証と、
// 自由入力テキストのサニタイズを提供する。
package security

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// allowedSchemes はアプリケーションURLとリダイレクトURIで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はプライベート宛先を拒否する設定で使用するネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック (RFC 1122)
		"127.0.0.0/8",
		// リンクローカル (RFC 3927)
		"169.254.0.0/16",
		// カレントネットワーク
		"0.0.0.0/8",
		// IPv6ループバック
		"::1/128",
		// IPv6リンクローカル
		"fe80::/10",
		// IPv6ユニークローカル
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// blockedHostnames はプライベート宛先を拒否する設定でブロックするホスト名。
var blockedHostnames = []string{
	"localhost",
}

// redirectSplitPattern はリダイレクトURIの区切り文字（カンマ・空白・改行）。
var redirectSplitPattern = regexp.MustCompile(`[,\s]+`)

// URLPolicy はアプリケーションURLとリダイレクトURIの検証ポリシー。
type URLPolicy struct {
	// AllowPrivate がtrueの場合、localhostやプライベートIPを許可する。
	AllowPrivate bool
}

// NewURLPolicy はURLPolicyを生成する。
func NewURLPolicy(allowPrivate bool) *URLPolicy {
	return &URLPolicy{AllowPrivate: allowPrivate}
}

// NormalizeURL は絶対URLを検証し、正規化した文字列を返す。
// スキームとホストを小文字化し、国際化ドメイン名はPunycodeに変換する。
// ユーザー情報を含むURLとフラグメントは拒否する。
func (p *URLPolicy) NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return "", fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}
	if parsed.User != nil {
		return "", fmt.Errorf("URL must not contain user info: %s", rawURL)
	}
	if parsed.Fragment != "" {
		return "", fmt.Errorf("URL must not contain a fragment: %s", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("empty host in URL: %s", rawURL)
	}

	asciiHost, err := normalizeHost(host)
	if err != nil {
		return "", err
	}

	if !p.AllowPrivate {
		if err := checkPublicHost(asciiHost); err != nil {
			return "", err
		}
	}

	parsed.Scheme = scheme
	if port := parsed.Port(); port != "" {
		parsed.Host = net.JoinHostPort(asciiHost, port)
	} else if strings.Contains(asciiHost, ":") {
		parsed.Host = "[" + asciiHost + "]"
	} else {
		parsed.Host = asciiHost
	}
	return parsed.String(), nil
}

// NormalizeRedirectURIs はリダイレクトURIの入力を正規化する。
// 各要素はカンマ・空白・改行で分割され、正規化後の重複は最初の出現順を保って除去される。
// 1件でも不正なURIがあればエラーを返す。
func (p *URLPolicy) NormalizeRedirectURIs(inputs []string) ([]string, error) {
	result := []string{}
	seen := make(map[string]struct{})
	for _, input := range inputs {
		for _, part := range redirectSplitPattern.Split(input, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			normalized, err := p.NormalizeURL(part)
			if err != nil {
				return nil, fmt.Errorf("invalid redirect URI %q: %w", part, err)
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			result = append(result, normalized)
		}
	}
	return result, nil
}

// RedirectAllowed はredirectURIが登録済みのいずれかのURIに一致するかを判定する。
// スキームとホストは完全一致、パスは登録パスの前方一致で比較する。末尾スラッシュは無視する。
func RedirectAllowed(redirectURI string, registered []string) bool {
	incoming, err := url.Parse(strings.TrimSpace(redirectURI))
	if err != nil || incoming.Scheme == "" || incoming.Host == "" {
		return false
	}
	for _, r := range registered {
		allowed, err := url.Parse(r)
		if err != nil {
			continue
		}
		if !strings.EqualFold(allowed.Scheme, incoming.Scheme) || !strings.EqualFold(allowed.Host, incoming.Host) {
			continue
		}
		allowedPath := strings.TrimSuffix(allowed.Path, "/")
		if allowedPath == "" || strings.HasPrefix(strings.TrimSuffix(incoming.Path, "/"), allowedPath) {
			return true
		}
	}
	return false
}

// normalizeHost はホスト名を小文字のASCII表現に変換する。IPアドレスはそのまま返す。
func normalizeHost(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	return ascii, nil
}

// checkPublicHost はループバック・プライベート宛先を拒否する。
func checkPublicHost(host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}
	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// isBlockedHostname はホスト名がブロック対象かを検証する。
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}

package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedNetworks は外部公開URLとして受け付けないネットワーク範囲。
var blockedNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // クラウドメタデータIPを含む
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, network)
	}
}

// blockedHostnames は受け付けないホスト名。
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// ValidatePublicURL は管理者が登録する動画・資料のURLを静的に検証する。
// http/httpsスキームで、ホストがプライベート・ループバック・リンクローカルでないことを要求する。
// DNS解決は行わない。
func ValidatePublicURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLを解析できません")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("許可されていないスキームです: %s", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("ホストがありません")
	}
	if parsed.User != nil {
		return fmt.Errorf("認証情報を含むURLは登録できません")
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("内部ネットワークのアドレスは登録できません: %s", ip)
			}
		}
		return nil
	}

	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("内部向けのホストは登録できません: %s", host)
	}
	return nil
}

package query

import "github.com/Aman-CERP/hybridrag/internal/chunk"

// expansion adds Terms to a query whose lower-cased text contains Key.
type expansion struct {
	Key   string
	Terms []string
}

// expansions is matched in order; all matching entries contribute.
var expansions = []expansion{
	// Health checks
	{"health check", []string{"health check", "check", "option httpchk", "tcp-check", "inter", "fall", "rise"}},
	{"httpchk", []string{"option httpchk", "http-check", "get", "head", "uri", "http version"}},
	{"check", []string{"check", "health check", "inter", "fall", "rise", "port", "address"}},

	// Bind
	{"bind", []string{"bind", ":", "port", "ssl", "crt", "key", "cafile", "verify", "alpn"}},
	{"directive bind", []string{"bind", "frontend", "listen", "address", "port", "ssl"}},

	// Connections and rate limiting
	{"limiter", []string{"stick-table", "conn_rate", "conn_cur", "gpc0", "deny", "reject", "rate limit"}},
	{"connexion par ip", []string{"stick-table", "src", "conn_rate", "conn_cur", "track-sc", "track-sc0", "deny", "http_req_rate", "sc0_http_req_rate"}},
	{"connexion", []string{"conn_rate", "conn_cur", "connection", "connect", "maxconn"}},
	{"rate limit", []string{"stick-table", "rate", "limit", "throttle", "deny", "tarpit", "http_req_rate", "http_req_cnt"}},
	{"bloquer", []string{"deny", "reject", "block", "drop", "429", "503"}},
	{"trop de", []string{"rate", "limit", "exceed", "gt", "greater than", "too many"}},

	// ACL
	{"acl", []string{"acl", "path_beg", "path_end", "hdr", "host", "url", "use_backend", "if", "condition"}},
	{"access control", []string{"acl", "allow", "deny", "http-request", "tcp-request"}},
	{"condition", []string{"acl", "if", "unless", "condition", "match"}},

	// Timeouts
	{"timeout", []string{"timeout", "connect", "client", "server", "http-request", "http-keep-alive", "queue"}},
	{"delai", []string{"timeout", "delay", "inter", "slowstart"}},

	// Backend, frontend, server
	{"backend", []string{"backend", "server", "balance", "option", "dispatch"}},
	{"frontend", []string{"frontend", "bind", "default_backend", "acl", "use_backend"}},
	{"server", []string{"server", "address", "port", "check", "weight", "backup"}},

	// SSL/TLS
	{"ssl", []string{"ssl", "tls", "crt", "certificate", "cafile", "verify", "ciphers"}},
	{"https", []string{"ssl", "https", "redirect", "scheme", "force-ssl"}},

	// Logging
	{"log", []string{"log", "syslog", "format", "capture", "error"}},

	// Protocol variants
	{"http", []string{"http", "http-request", "http-response", "httpchk"}},
	{"tcp", []string{"tcp", "tcp-check", "tcp-request", "tcp-response"}},
	{"config", []string{"directive", "option", "keyword", "syntax"}},
}

// categoryHint maps a query substring to the category it suggests.
type categoryHint struct {
	Key      string
	Category chunk.Category
}

// categoryHints is scanned in order and the first match wins,
// so specific phrases come before the generic words they contain.
var categoryHints = []categoryHint{
	{"health check", chunk.CategoryHealthcheck},
	{"healthcheck", chunk.CategoryHealthcheck},
	{"httpchk", chunk.CategoryHealthcheck},
	{"tcp-check", chunk.CategoryHealthcheck},
	{"stick-table", chunk.CategoryStickTable},
	{"stick table", chunk.CategoryStickTable},
	{"rate limit", chunk.CategoryStickTable},
	{"limiter", chunk.CategoryStickTable},
	{"connexion par ip", chunk.CategoryStickTable},
	{"track-sc", chunk.CategoryStickTable},
	{"http_req_rate", chunk.CategoryStickTable},
	{"load balancing", chunk.CategoryLoadBalancing},
	{"loadbalancing", chunk.CategoryLoadBalancing},
	{"répartition", chunk.CategoryLoadBalancing},
	{"repartition", chunk.CategoryLoadBalancing},
	{"roundrobin", chunk.CategoryLoadBalancing},
	{"leastconn", chunk.CategoryLoadBalancing},
	{"balance", chunk.CategoryLoadBalancing},
	{"certificat", chunk.CategorySSL},
	{"https", chunk.CategorySSL},
	{"ssl", chunk.CategorySSL},
	{"tls", chunk.CategorySSL},
	{"access control", chunk.CategoryACL},
	{"path_beg", chunk.CategoryACL},
	{"acl", chunk.CategoryACL},
	{"timeout", chunk.CategoryTimeout},
	{"délai", chunk.CategoryTimeout},
	{"delai", chunk.CategoryTimeout},
	{"statistique", chunk.CategoryStats},
	{"stats", chunk.CategoryStats},
	{"syslog", chunk.CategoryLogs},
	{"log", chunk.CategoryLogs},
	{"frontend", chunk.CategoryFrontend},
	{"bind", chunk.CategoryFrontend},
	{"backend", chunk.CategoryBackend},
	{"serveur", chunk.CategoryBackend},
	{"server", chunk.CategoryBackend},
	{"check", chunk.CategoryHealthcheck},
}

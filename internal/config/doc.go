// Package config loads the support-gateway YAML configuration.
//
// Files may reference environment variables as ${VAR_NAME}; references are
// expanded before parsing, so secrets can stay out of the file:
//
//	auth:
//	  jwt_secret: ${SUPPORT_JWT_SECRET}
//	support:
//	  policy: availability
//	  agents: [agent-priya, agent-rahul]
//	presence:
//	  redis_url: ${REDIS_URL}
//	  ttl: 60s
//
// Duration fields accept Go duration strings ("60s", "5m"). Load applies
// defaults, parses durations and validates before returning.
package config

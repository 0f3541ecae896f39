// Package config provides configuration management for clinicguard.
//
// Configuration is read from $CLINICGUARD_CONFIG_PATH/clinicguard.yml
// (default /etc/clinicguard/clinicguard.yml) and then overridden by
// environment variables. Every attribute has an environment variable named
// CLINICGUARD_ followed by the upper-cased key, for example
// CLINICGUARD_BUSINESS_HOURS_START. DATABASE_URL is also honored.
//
// The source of every value (default, file or environment) is tracked and
// shown by "clinicctl configuration show".
package config

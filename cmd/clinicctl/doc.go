// Command clinicctl runs the clinicguard server, which decides whether clinic
// staff may perform an action, issues time-boxed permission grants, keeps a
// risk-scored audit trail and raises alerts on suspicious activity.
//
// # Quick Start
//
//	# Apply the schema
//	export CLINICGUARD_DATABASE_URL=postgres://clinicguard@localhost/clinicguard?sslmode=disable
//	clinicctl db migrate
//
//	# Start the server
//	export CLINICGUARD_JWT_SECRET=$(openssl rand -hex 32)
//	clinicctl server
//
//	# Issue a token for a staff member
//	clinicctl token issue dr-lee dentist --ttl 8h
//
// # Maintenance
//
//   - clinicctl grants sweep: deactivate expired grants
//   - clinicctl alerts scan | list | transition: run detection and triage alerts
//   - clinicctl catalog validate | default | watch: check the role catalog
//   - clinicctl configuration show: print effective settings and their sources
//
// # Environment Variables
//
//   - CLINICGUARD_CONFIG_PATH: directory holding clinicguard.yml
//   - CLINICGUARD_DATABASE_URL (or DATABASE_URL): PostgreSQL connection string
//   - CLINICGUARD_STORE: postgres or memory
//   - CLINICGUARD_JWT_SECRET: HS256 key for identity tokens
//   - CLINICGUARD_LOG_LEVEL: debug, info, warn or error
package main

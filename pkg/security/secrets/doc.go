// Package secrets resolves credential references in configuration.
//
// A configuration value may hold the secret itself or point at where it
// lives:
//
//	mirror:
//	  access_key_id: env:BACKUP_S3_KEY_ID
//	  secret_access_key: file:/run/secrets/backup-s3-secret
//
// Resolve returns literal values unchanged. File secrets must be regular
// files readable only by their owner (0600 or 0400); surrounding whitespace
// is trimmed.
package secrets

// Package core contains the connector contracts and the OAuth callback
// orchestration: state tokens, the provider exchange registry, the credential
// vault and the audit chain. Provider adapters and storage depend on this
// package; core must not depend on them.
package core

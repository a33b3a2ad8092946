// Package model defines the provider-agnostic text generation contract the
// invocation engine runs on.
//
// A Request carries a system instruction plus an ordered transcript of
// role-tagged turns; a Response carries the assistant's reply and token
// usage. Providers (Anthropic, OpenAI) implement Model in sub-packages so
// higher layers remain decoupled from vendor SDKs. MockModel serves tests
// and offline runs.
package model

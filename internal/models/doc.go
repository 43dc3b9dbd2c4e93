// Package models defines the GophChat entities persisted by both storage
// variants: Profile, Chat, Membership, Message and AttachmentMeta, plus the
// Blob carried alongside an attachment. The types hold data and the few pure
// derivations that every layer must agree on (message kind, avatar colour,
// direct-chat pair key).
package models

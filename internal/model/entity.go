// Package model provides data models for the test management system.
package model

// EntityKind identifies a target entity class for generic associations
// (labels, attachments, custom attribute policies) and the cascade engine.
type EntityKind string

const (
	KindProject         EntityKind = "project"
	KindSuite           EntityKind = "testsuite"
	KindCase            EntityKind = "testcase"
	KindStep            EntityKind = "teststep"
	KindPlan            EntityKind = "testplan"
	KindTest            EntityKind = "test"
	KindResult          EntityKind = "testresult"
	KindStepResult      EntityKind = "teststepresult"
	KindStatus          EntityKind = "status"
	KindLabel           EntityKind = "label"
	KindLabeledItem     EntityKind = "labeleditem"
	KindAttribute       EntityKind = "customattribute"
	KindAttachment      EntityKind = "attachment"
	KindParameter       EntityKind = "parameter"
	KindMembership      EntityKind = "membership"
	KindNotification    EntityKind = "notification"
	KindNotificationCfg EntityKind = "notificationsetting"
	KindUser            EntityKind = "user"
)

// HistoryType marks the kind of history record.
type HistoryType string

const (
	HistoryCreated HistoryType = "+"
	HistoryChanged HistoryType = "~"
	HistoryDeleted HistoryType = "-"
)

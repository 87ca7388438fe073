// Package crm implements the CRM record keeping: accounts, people, triggers,
// messages and conversations.
//
// The Gateway bundles one repository per entity and is the only storage
// surface the pipeline packages (scanner, brain, mailer) depend on. Service
// adds validation and status rules on top of it for the HTTP layer.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package crm

// Package lifecycle implements list, create, update and delete for the
// directory's user families and for stations.
//
// Each user family is described by a Kind: the roles it covers, how its
// identity accounts are provisioned and where a new row takes its station
// from. Every operation consults the rbac engine before it touches the
// identity provider or the store.
//
// Creating a user with an identity account is a two step saga. The account
// is provisioned first and the directory row inserted second; if the insert
// fails the account is deleted again. A failed compensation leaves an
// orphaned account, which is logged, counted, audited and reported.
package lifecycle

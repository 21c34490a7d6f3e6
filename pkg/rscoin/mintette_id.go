package rscoin

// MintetteID is a position in the Bank's mintette roster. Mintette ids are
// reassigned across periods — a node's id in period k+1 may differ from its
// id in period k (see mintette.State.PreviousMintetteID).
type MintetteID int

package cashflow

var WriteSnapshot = writeSnapshot

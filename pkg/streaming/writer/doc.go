/*
Package writer persists mapped rows as CSV.

A Writer is created for a list of declared fields and immediately writes the
header row: the sequence column, the success column, then the declared fields
in order.

	w, err := writer.Create("input_mapped.csv", []string{"a", "b"}, writer.DefaultConfig())
	if err != nil {
		return err
	}
	defer w.Close()

	err = w.WriteRow(ctx, writer.Row{Seq: 1, Succeeded: true, Values: values})

# Durability

Each row is serialised completely in memory and handed to the destination in
a single write before WriteRow returns, so an interrupted job leaves whole rows
only. Set Config.Sync to also fsync after every row.

# Errors

WriteRow distinguishes two kinds of failure:

  - errors wrapping ErrRowDropped: the row could not be serialised (an
    undeclared field, invalid UTF-8). Nothing was written and later rows are
    unaffected.
  - any other error: the destination failed even after MaxRetries attempts.
    Callers should stop writing to this file.

Failed transform results are written with an empty value for every declared
field.
*/
package writer
